package search

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"cardstack/api/internal/store"
)

// PublicCardLister is the slice of the store the fallback needs.
type PublicCardLister interface {
	ListPublicCards(ctx context.Context, search, tag string) ([]store.KnowledgeCard, error)
}

// PgLike is the fallback searcher. It matches the catalog's substring
// semantics over public cards, so results stay consistent when
// Meilisearch is down.
type PgLike struct {
	cards PublicCardLister
}

func NewPgLike(cards PublicCardLister) *PgLike {
	return &PgLike{cards: cards}
}

// Healthy always reports true; the fallback shares the primary database.
func (p *PgLike) Healthy() bool {
	return true
}

func (p *PgLike) Search(q Query) ([]Result, int, error) {
	q = q.bounded()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cards, err := p.cards.ListPublicCards(ctx, q.Text, q.Tag)
	if err != nil {
		return nil, 0, fmt.Errorf("pglike search: %w", err)
	}

	total := len(cards)

	offset := q.Offset
	if offset > total {
		offset = total
	}
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	end := offset + limit
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-offset)
	for _, card := range cards[offset:end] {
		results = append(results, Result{
			ID:       card.ID,
			Title:    card.Title,
			Snippet:  snippet(card),
			Tags:     card.Tags,
			TeamName: card.OwnerTeamName,
		})
	}
	return results, total, nil
}

func snippet(card store.KnowledgeCard) string {
	text := card.Summary
	if text == "" {
		text = card.Content
	}
	// Truncate on a rune boundary so multibyte text stays valid UTF-8.
	if utf8.RuneCountInString(text) > 200 {
		text = string([]rune(text)[:200])
	}
	return text
}
