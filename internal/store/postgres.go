package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrEmailTaken is returned by CreateUser when the email is already
// registered.
var ErrEmailTaken = errors.New("email already registered")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) SeedTeams(ctx context.Context, teams []Team) error {
	for _, team := range teams {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO teams (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, team.ID, team.Name)
		if err != nil {
			return fmt.Errorf("seed team %s: %w", team.Name, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM teams ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		var item Team
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTeamByName(ctx context.Context, name string) (Team, error) {
	var team Team
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM teams WHERE name=$1`, name).
		Scan(&team.ID, &team.Name, &team.CreatedAt)
	if err != nil {
		return Team{}, err
	}
	return team, nil
}

func (s *PostgresStore) GetTeamByID(ctx context.Context, teamID string) (Team, error) {
	var team Team
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM teams WHERE id=$1`, teamID).
		Scan(&team.ID, &team.Name, &team.CreatedAt)
	if err != nil {
		return Team{}, err
	}
	return team, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, team_id)
		VALUES ($1, LOWER($2), $3, $4, $5)
		RETURNING id, email, display_name, password_hash, team_id, created_at
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.TeamID).
		Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.TeamID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, team_id, created_at
		FROM users WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.TeamID, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, team_id, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.TeamID, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

const cardColumns = `
	c.id, c.title, c.content, c.summary, c.tags, c.related_cards, c.visibility,
	c.like_count, c.owner_team_id, t.name, c.creator_user_id, u.display_name,
	c.created_at, c.updated_at
`

func scanCard(row interface{ Scan(...any) error }) (KnowledgeCard, error) {
	var (
		card        KnowledgeCard
		tagsJSON    []byte
		relatedJSON []byte
	)
	err := row.Scan(
		&card.ID, &card.Title, &card.Content, &card.Summary, &tagsJSON, &relatedJSON,
		&card.Visibility, &card.LikeCount, &card.OwnerTeamID, &card.OwnerTeamName,
		&card.CreatorUserID, &card.CreatorName, &card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return KnowledgeCard{}, err
	}
	if err := json.Unmarshal(tagsJSON, &card.Tags); err != nil {
		return KnowledgeCard{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(relatedJSON, &card.RelatedCards); err != nil {
		return KnowledgeCard{}, fmt.Errorf("decode related cards: %w", err)
	}
	if card.Tags == nil {
		card.Tags = []string{}
	}
	if card.RelatedCards == nil {
		card.RelatedCards = []string{}
	}
	return card, nil
}

func encodeList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func (s *PostgresStore) InsertCard(ctx context.Context, card KnowledgeCard) error {
	tagsJSON, err := encodeList(card.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	relatedJSON, err := encodeList(card.RelatedCards)
	if err != nil {
		return fmt.Errorf("encode related cards: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_cards
			(id, title, content, summary, tags, related_cards, visibility, owner_team_id, creator_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, card.ID, card.Title, card.Content, card.Summary, tagsJSON, relatedJSON,
		card.Visibility, card.OwnerTeamID, card.CreatorUserID)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID string) (KnowledgeCard, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM knowledge_cards c
		JOIN teams t ON t.id = c.owner_team_id
		JOIN users u ON u.id = c.creator_user_id
		WHERE c.id=$1
	`, cardID)
	return scanCard(row)
}

func (s *PostgresStore) UpdateCard(ctx context.Context, card KnowledgeCard) error {
	tagsJSON, err := encodeList(card.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	relatedJSON, err := encodeList(card.RelatedCards)
	if err != nil {
		return fmt.Errorf("encode related cards: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_cards
		SET title=$2, content=$3, summary=$4, tags=$5, related_cards=$6, visibility=$7, updated_at=NOW()
		WHERE id=$1
	`, card.ID, card.Title, card.Content, card.Summary, tagsJSON, relatedJSON, card.Visibility)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update card rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCard removes the card together with its likes and comments.
// The schema cascades both, so a single delete suffices.
func (s *PostgresStore) DeleteCard(ctx context.Context, cardID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_cards WHERE id=$1`, cardID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete card rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListCandidateCards returns the newest cards across the whole store,
// excluding excludeID, for the enrichment step to pick related cards from.
func (s *PostgresStore) ListCandidateCards(ctx context.Context, excludeID string, limit int) ([]CandidateCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content
		FROM knowledge_cards
		WHERE id <> $1
		ORDER BY created_at DESC
		LIMIT $2
	`, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidate cards: %w", err)
	}
	defer rows.Close()

	items := make([]CandidateCard, 0)
	for rows.Next() {
		var item CandidateCard
		if err := rows.Scan(&item.ID, &item.Title, &item.Content); err != nil {
			return nil, fmt.Errorf("scan candidate card: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate cards: %w", err)
	}
	return items, nil
}

// ListPublicCards returns all public cards, optionally filtered by a
// case-insensitive substring over title or content and by an exact tag.
func (s *PostgresStore) ListPublicCards(ctx context.Context, search, tag string) ([]KnowledgeCard, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM knowledge_cards c
		JOIN teams t ON t.id = c.owner_team_id
		JOIN users u ON u.id = c.creator_user_id
		WHERE c.visibility = 'PUBLIC'
	`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := fmt.Sprintf("$%d", len(args))
		query += ` AND (c.title ILIKE ` + n + ` OR c.content ILIKE ` + n + `)`
	}
	if tag != "" {
		args = append(args, tag)
		query += fmt.Sprintf(` AND c.tags @> jsonb_build_array($%d::text)`, len(args))
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list public cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// ListPublicTags returns the distinct tags across all public cards,
// sorted alphabetically.
func (s *PostgresStore) ListPublicTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT jsonb_array_elements_text(tags) AS tag
		FROM knowledge_cards
		WHERE visibility = 'PUBLIC'
		ORDER BY tag ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list public tags: %w", err)
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// ListCardsOwnedByTeam returns the cards a single team owns, newest
// first. With publicOnly set only that team's public cards are returned.
func (s *PostgresStore) ListCardsOwnedByTeam(ctx context.Context, teamID string, publicOnly bool) ([]KnowledgeCard, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM knowledge_cards c
		JOIN teams t ON t.id = c.owner_team_id
		JOIN users u ON u.id = c.creator_user_id
		WHERE c.owner_team_id = $1
	`
	if publicOnly {
		query += ` AND c.visibility = 'PUBLIC'`
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// CountCardsOwnedByTeam counts every card a team owns regardless of
// visibility.
func (s *PostgresStore) CountCardsOwnedByTeam(ctx context.Context, teamID string) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_cards WHERE owner_team_id = $1`, teamID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count team cards: %w", err)
	}
	return total, nil
}

func collectCards(rows *sql.Rows) ([]KnowledgeCard, error) {
	items := make([]KnowledgeCard, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

// ToggleLike flips the viewer's like on a card and adjusts the stored
// counter in the same transaction. It returns the resulting state.
func (s *PostgresStore) ToggleLike(ctx context.Context, userID, cardID string) (liked bool, likeCount int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin like tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id=$1 AND card_id=$2`, userID, cardID)
	if err != nil {
		return false, 0, fmt.Errorf("delete like: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("delete like rows: %w", err)
	}

	if removed > 0 {
		err = tx.QueryRowContext(ctx, `
			UPDATE knowledge_cards SET like_count = like_count - 1 WHERE id=$1
			RETURNING like_count
		`, cardID).Scan(&likeCount)
		if err != nil {
			return false, 0, fmt.Errorf("decrement like count: %w", err)
		}
		liked = false
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO likes (user_id, card_id) VALUES ($1, $2)`, userID, cardID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// A concurrent toggle inserted the like first. The
				// viewer's intent is already satisfied.
				_ = tx.Rollback()
				err = s.db.QueryRowContext(ctx, `SELECT like_count FROM knowledge_cards WHERE id=$1`, cardID).Scan(&likeCount)
				if err != nil {
					return false, 0, fmt.Errorf("reread like count: %w", err)
				}
				return true, likeCount, nil
			}
			return false, 0, fmt.Errorf("insert like: %w", err)
		}
		err = tx.QueryRowContext(ctx, `
			UPDATE knowledge_cards SET like_count = like_count + 1 WHERE id=$1
			RETURNING like_count
		`, cardID).Scan(&likeCount)
		if err != nil {
			return false, 0, fmt.Errorf("increment like count: %w", err)
		}
		liked = true
	}

	if err = tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit like tx: %w", err)
	}
	return liked, likeCount, nil
}

func (s *PostgresStore) ListLikedCardIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT card_id FROM likes WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list liked cards: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan liked card: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liked cards: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, card_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, comment.ID, comment.CardID, comment.AuthorID, comment.Body).Scan(&comment.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

// ListComments returns a card's comments newest first.
func (s *PostgresStore) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.id, cm.card_id, cm.author_id, u.display_name, cm.body, cm.created_at
		FROM comments cm
		JOIN users u ON u.id = cm.author_id
		WHERE cm.card_id=$1
		ORDER BY cm.created_at DESC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.CardID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.password_hash, u.team_id, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.TeamID, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
