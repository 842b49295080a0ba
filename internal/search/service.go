package search

import (
	"context"
	"log"

	"cardstack/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// a Postgres substring search.
type Service struct {
	meili  *Meili
	pglike *PgLike
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, pglike *PgLike) *Service {
	return &Service{meili: meili, pglike: pglike}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pglike.Search(q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexCard indexes a public card (fire-and-forget to Meilisearch).
// Private cards must never reach the index.
func (s *Service) IndexCard(card CardRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCard(card); err != nil {
			log.Printf("search: index card %s: %v", card.ID, err)
		}
	}()
}

// DeleteCard removes a card from the search index (fire-and-forget).
// Also called when a card turns private.
func (s *Service) DeleteCard(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCard(id); err != nil {
			log.Printf("search: delete card %s: %v", id, err)
		}
	}()
}

// ReindexAllFromStore reads all public cards and pushes them to
// Meilisearch. Called during bootstrap.
func (s *Service) ReindexAllFromStore(ctx context.Context, cards PublicCardLister) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	public, err := cards.ListPublicCards(ctx, "", "")
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}

	records := make([]CardRecord, 0, len(public))
	for _, card := range public {
		records = append(records, ToCardRecord(card))
	}
	if err := s.meili.IndexCards(records); err != nil {
		log.Printf("search: reindex cards: %v", err)
	}
}

// ToCardRecord converts a stored card into its index projection.
func ToCardRecord(card store.KnowledgeCard) CardRecord {
	return CardRecord{
		ID:       card.ID,
		Title:    card.Title,
		Content:  card.Content,
		Summary:  card.Summary,
		Tags:     card.Tags,
		TeamName: card.OwnerTeamName,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
