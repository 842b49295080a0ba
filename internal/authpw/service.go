// Package authpw provides email/password authentication with team
// membership assigned at sign-up.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"cardstack/api/internal/store"
	"cardstack/api/internal/util"
)

// Sentinel errors the HTTP layer maps onto distinct status codes.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidTeam        = errors.New("unknown team")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrMissingFields      = errors.New("email, password, name, and team are required")
)

// UserStore defines the storage interface for auth.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetTeamByName(ctx context.Context, name string) (store.Team, error)
}

// Service provides email/password authentication.
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters. TeamName must match one of
// the seeded teams.
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
	TeamName string
}

// SignUp creates a new user account in the named team.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" || req.TeamName == "" {
		return store.User{}, ErrMissingFields
	}
	if len(req.Password) < 6 {
		return store.User{}, ErrWeakPassword
	}

	team, err := s.store.GetTeamByName(ctx, req.TeamName)
	if err != nil {
		return store.User{}, ErrInvalidTeam
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		TeamID:       team.ID,
	}

	created, err := s.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// SignIn authenticates a user. It returns the same error for an unknown
// email and a wrong password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}
