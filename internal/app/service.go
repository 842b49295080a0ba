package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"cardstack/api/internal/auth"
	"cardstack/api/internal/authpw"
	"cardstack/api/internal/config"
	"cardstack/api/internal/enrich"
	"cardstack/api/internal/export"
	"cardstack/api/internal/policy"
	"cardstack/api/internal/search"
	"cardstack/api/internal/store"
	"cardstack/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	TeamID       string
	JTI          string
	ExpiresAt    time.Time
}

// CardInput carries the user-editable fields of a card.
type CardInput struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

// CommentInput carries a new comment body.
type CommentInput struct {
	Body string `json:"body"`
}

const (
	maxCommentLength = 1000
	enrichCandidates = 20
	changeChannel    = "cards.changed"
)

var seedTeamNames = []string{"A-Team", "B-Team", "C-Team"}

type dataStore interface {
	SeedTeams(ctx context.Context, teams []store.Team) error
	ListTeams(ctx context.Context) ([]store.Team, error)
	GetTeamByName(ctx context.Context, name string) (store.Team, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	InsertCard(ctx context.Context, card store.KnowledgeCard) error
	GetCard(ctx context.Context, cardID string) (store.KnowledgeCard, error)
	UpdateCard(ctx context.Context, card store.KnowledgeCard) error
	DeleteCard(ctx context.Context, cardID string) error
	ListCandidateCards(ctx context.Context, excludeID string, limit int) ([]store.CandidateCard, error)
	ListPublicCards(ctx context.Context, search, tag string) ([]store.KnowledgeCard, error)
	ListPublicTags(ctx context.Context) ([]string, error)
	ListCardsOwnedByTeam(ctx context.Context, teamID string, publicOnly bool) ([]store.KnowledgeCard, error)
	CountCardsOwnedByTeam(ctx context.Context, teamID string) (int, error)
	ToggleLike(ctx context.Context, userID, cardID string) (bool, int, error)
	ListLikedCardIDs(ctx context.Context, userID string) ([]string, error)
	InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error)
	ListComments(ctx context.Context, cardID string) ([]store.Comment, error)
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

// sessionStore abstracts refresh token storage. Redis in production,
// the primary database as fallback.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// changePublisher broadcasts card change events so other consumers can
// refresh without polling.
type changePublisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// pgSessions adapts the primary database to the sessionStore interface.
type pgSessions struct {
	store dataStore
}

func (p pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	authpw    *authpw.Service
	enricher  *enrich.Service
	search    *search.Service
	exporter  *export.Service
	publisher changePublisher
}

func New(cfg config.Config, dataStore *store.PostgresStore, enricher *enrich.Service, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: pgSessions{store: dataStore},
		authpw:   authpw.NewService(dataStore),
		enricher: enricher,
		search:   searchService,
		exporter: export.NewService(dataStore),
	}
}

// NewWithSessionStore builds a service that keeps refresh tokens in an
// external session store and publishes change events through it when it
// also implements changePublisher.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, enricher *enrich.Service, searchService *search.Service) *Service {
	svc := New(cfg, dataStore, enricher, searchService)
	svc.sessions = sessions
	if publisher, ok := sessions.(changePublisher); ok {
		svc.publisher = publisher
	}
	return svc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the fixed set of teams and warms the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	teams := make([]store.Team, 0, len(seedTeamNames))
	for _, name := range seedTeamNames {
		teams = append(teams, store.Team{ID: util.NewID("team"), Name: name})
	}
	if err := s.store.SeedTeams(ctx, teams); err != nil {
		return fmt.Errorf("seed teams: %w", err)
	}

	if s.search != nil {
		s.search.ReindexAllFromStore(ctx, s.store)
	}
	return nil
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Reload the user so team changes take effect on rotation.
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:    user.ID,
		Email:  user.Email,
		TeamID: user.TeamID,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		TeamID:       user.TeamID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Email:     user.Email,
		TeamID:    user.TeamID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) viewer(session Session) policy.Viewer {
	return policy.Viewer{ID: session.UserID, TeamID: session.TeamID}
}

func policyCard(card store.KnowledgeCard) policy.Card {
	return policy.Card{
		ID:            card.ID,
		OwnerTeamID:   card.OwnerTeamID,
		CreatorUserID: card.CreatorUserID,
		Visibility:    policy.Visibility(card.Visibility),
	}
}

// =============================================================================
// Cards
// =============================================================================

func validateCardInput(input CardInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.Content) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if !policy.ValidVisibility(policy.Visibility(input.Visibility)) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "visibility must be PUBLIC or PRIVATE", nil)
	}
	return nil
}

func (s *Service) enrichCard(ctx context.Context, excludeID, title, content string) enrich.Result {
	candidates, err := s.store.ListCandidateCards(ctx, excludeID, enrichCandidates)
	if err != nil {
		log.Printf("enrich: list candidates: %v", err)
		candidates = nil
	}
	input := enrich.Input{Title: title, Content: content}
	for _, c := range candidates {
		input.Candidates = append(input.Candidates, enrich.Candidate{ID: c.ID, Title: c.Title, Content: c.Content})
	}
	return s.enricher.Enrich(ctx, input)
}

func (s *Service) CreateCard(ctx context.Context, session Session, input CardInput) (map[string]any, error) {
	if session.TeamID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a team membership is required to create cards", nil)
	}
	if err := validateCardInput(input); err != nil {
		return nil, err
	}

	result := s.enrichCard(ctx, "", input.Title, input.Content)

	card := store.KnowledgeCard{
		ID:            util.NewID("card"),
		Title:         strings.TrimSpace(input.Title),
		Content:       input.Content,
		Summary:       result.Summary,
		Tags:          result.Tags,
		RelatedCards:  result.RelatedCards,
		Visibility:    input.Visibility,
		OwnerTeamID:   session.TeamID,
		CreatorUserID: session.UserID,
	}
	if err := s.store.InsertCard(ctx, card); err != nil {
		return nil, err
	}

	created, err := s.store.GetCard(ctx, card.ID)
	if err != nil {
		return nil, err
	}

	s.syncSearchIndex(created)
	s.notifyChanged(created.ID)
	return cardPayload(created), nil
}

func (s *Service) GetCardForViewer(ctx context.Context, session Session, cardID string) (map[string]any, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		// Hidden cards are indistinguishable from missing ones.
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return cardPayload(card), nil
}

func (s *Service) UpdateCard(ctx context.Context, session Session, cardID string, input CardInput) (map[string]any, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if !policy.CanMutate(s.viewer(session), policyCard(card)) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator can modify a card", nil)
	}
	if err := validateCardInput(input); err != nil {
		return nil, err
	}

	result := s.enrichCard(ctx, card.ID, input.Title, input.Content)

	card.Title = strings.TrimSpace(input.Title)
	card.Content = input.Content
	card.Summary = result.Summary
	card.Tags = result.Tags
	card.RelatedCards = result.RelatedCards
	card.Visibility = input.Visibility
	if err := s.store.UpdateCard(ctx, card); err != nil {
		return nil, err
	}

	updated, err := s.store.GetCard(ctx, card.ID)
	if err != nil {
		return nil, err
	}

	s.syncSearchIndex(updated)
	s.notifyChanged(updated.ID)
	return cardPayload(updated), nil
}

func (s *Service) DeleteCard(ctx context.Context, session Session, cardID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if !policy.CanMutate(s.viewer(session), policyCard(card)) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator can delete a card", nil)
	}

	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCard(cardID)
	}
	s.notifyChanged(cardID)
	return nil
}

// =============================================================================
// Likes
// =============================================================================

func (s *Service) ToggleLike(ctx context.Context, session Session, cardID string) (map[string]any, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	liked, likeCount, err := s.store.ToggleLike(ctx, session.UserID, cardID)
	if err != nil {
		return nil, err
	}
	s.notifyChanged(cardID)
	return map[string]any{
		"cardId":    cardID,
		"liked":     liked,
		"likeCount": likeCount,
	}, nil
}

// ListLikedCards returns the cards the viewer has liked and can still
// read. Likes on cards that turned private elsewhere stay stored but
// are not shown.
func (s *Service) ListLikedCards(ctx context.Context, session Session) (map[string]any, error) {
	ids, err := s.store.ListLikedCardIDs(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	cards := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		card, err := s.store.GetCard(ctx, id)
		if err != nil {
			continue
		}
		if !policy.CanRead(s.viewer(session), policyCard(card)) {
			continue
		}
		cards = append(cards, cardPayload(card))
	}
	return map[string]any{"cards": cards}, nil
}

// =============================================================================
// Comments
// =============================================================================

func (s *Service) AddComment(ctx context.Context, session Session, cardID string, input CommentInput) (map[string]any, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body is required", nil)
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body must be at most 1000 characters", nil)
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		ID:       util.NewID("cmt"),
		CardID:   cardID,
		AuthorID: session.UserID,
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	comment.AuthorName = session.UserName
	s.notifyChanged(cardID)
	return commentPayload(comment), nil
}

func (s *Service) ListComments(ctx context.Context, session Session, cardID string) (map[string]any, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	comments, err := s.store.ListComments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentPayload(comment))
	}
	return map[string]any{"comments": items}, nil
}

// =============================================================================
// Catalogs
// =============================================================================

// PublicCatalog returns all public cards, optionally filtered by a
// title/content substring and an exact tag, plus the distinct tag set
// and the viewer's liked-card ids for per-card liked state.
func (s *Service) PublicCatalog(ctx context.Context, session Session, searchText, tag string) (map[string]any, error) {
	cards, err := s.store.ListPublicCards(ctx, searchText, tag)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.ListPublicTags(ctx)
	if err != nil {
		return nil, err
	}
	liked, err := s.store.ListLikedCardIDs(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		items = append(items, cardPayload(card))
	}
	return map[string]any{
		"cards":        items,
		"tags":         tags,
		"likedCardIds": liked,
	}, nil
}

// TeamCatalog groups cards by owning team, name ascending. The viewer's
// own team shows everything it owns, other teams show public cards only,
// and each group carries the team's total card count so hidden cards are
// countable without being readable.
func (s *Service) TeamCatalog(ctx context.Context, session Session) (map[string]any, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	groups := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		publicOnly := team.ID != session.TeamID || session.TeamID == ""
		cards, err := s.store.ListCardsOwnedByTeam(ctx, team.ID, publicOnly)
		if err != nil {
			return nil, err
		}
		total, err := s.store.CountCardsOwnedByTeam(ctx, team.ID)
		if err != nil {
			return nil, err
		}

		items := make([]map[string]any, 0, len(cards))
		for _, card := range cards {
			items = append(items, cardPayload(card))
		}
		groups = append(groups, map[string]any{
			"teamId":       team.ID,
			"teamName":     team.Name,
			"cards":        items,
			"visibleCount": len(items),
			"hiddenCount":  total - len(items),
			"totalCount":   total,
		})
	}

	liked, err := s.store.ListLikedCardIDs(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"teams":        groups,
		"likedCardIds": liked,
	}, nil
}

func (s *Service) ListTeams(ctx context.Context) (map[string]any, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		items = append(items, map[string]any{
			"id":   team.ID,
			"name": team.Name,
		})
	}
	return map[string]any{"teams": items}, nil
}

// =============================================================================
// Search
// =============================================================================

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// =============================================================================
// Export
// =============================================================================

func (s *Service) ExportCard(ctx context.Context, session Session, req export.Request) (*export.Result, error) {
	card, err := s.store.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(s.viewer(session), policyCard(card)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return s.exporter.Export(ctx, req)
}

// =============================================================================
// Helpers
// =============================================================================

// syncSearchIndex keeps the public-only index consistent with the card's
// current visibility.
func (s *Service) syncSearchIndex(card store.KnowledgeCard) {
	if s.search == nil {
		return
	}
	if card.Visibility == string(policy.VisibilityPublic) {
		s.search.IndexCard(search.ToCardRecord(card))
		return
	}
	s.search.DeleteCard(card.ID)
}

func (s *Service) notifyChanged(cardID string) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, changeChannel, cardID); err != nil {
			log.Printf("publish %s: %v", changeChannel, err)
		}
	}()
}

func cardPayload(card store.KnowledgeCard) map[string]any {
	return map[string]any{
		"id":           card.ID,
		"title":        card.Title,
		"content":      card.Content,
		"summary":      card.Summary,
		"tags":         card.Tags,
		"relatedCards": card.RelatedCards,
		"visibility":   card.Visibility,
		"likeCount":    card.LikeCount,
		"teamId":       card.OwnerTeamID,
		"teamName":     card.OwnerTeamName,
		"creatorId":    card.CreatorUserID,
		"creatorName":  card.CreatorName,
		"createdAt":    card.CreatedAt,
		"updatedAt":    card.UpdatedAt,
	}
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":         comment.ID,
		"cardId":     comment.CardID,
		"authorId":   comment.AuthorID,
		"authorName": comment.AuthorName,
		"body":       comment.Body,
		"createdAt":  comment.CreatedAt,
	}
}
