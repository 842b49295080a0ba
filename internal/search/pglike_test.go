package search

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"cardstack/api/internal/store"
)

type fakeCardLister struct {
	cards []store.KnowledgeCard
}

func (f *fakeCardLister) ListPublicCards(_ context.Context, search, tag string) ([]store.KnowledgeCard, error) {
	matched := make([]store.KnowledgeCard, 0)
	for _, card := range f.cards {
		if search != "" &&
			!strings.Contains(strings.ToLower(card.Title), strings.ToLower(search)) &&
			!strings.Contains(strings.ToLower(card.Content), strings.ToLower(search)) {
			continue
		}
		if tag != "" {
			found := false
			for _, t := range card.Tags {
				if t == tag {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, card)
	}
	return matched, nil
}

func sampleCards() []store.KnowledgeCard {
	return []store.KnowledgeCard{
		{ID: "c1", Title: "Postgres indexing", Content: "GIN and btree", Tags: []string{"postgres"}, Summary: "Index types.", OwnerTeamName: "A-Team"},
		{ID: "c2", Title: "Redis caching", Content: "TTL strategies", Tags: []string{"redis"}, Summary: "Cache design.", OwnerTeamName: "B-Team"},
		{ID: "c3", Title: "Go testing", Content: "httptest and fakes", Tags: []string{"go", "testing"}, OwnerTeamName: "A-Team"},
	}
}

func TestPgLikeSearchByText(t *testing.T) {
	p := NewPgLike(&fakeCardLister{cards: sampleCards()})

	results, total, err := p.Search(Query{Text: "redis"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("expected 1 hit, got total=%d len=%d", total, len(results))
	}
	if results[0].ID != "c2" {
		t.Errorf("expected c2, got %s", results[0].ID)
	}
	if results[0].Snippet != "Cache design." {
		t.Errorf("expected summary snippet, got %q", results[0].Snippet)
	}
}

func TestPgLikeSearchByTag(t *testing.T) {
	p := NewPgLike(&fakeCardLister{cards: sampleCards()})

	results, _, err := p.Search(Query{Tag: "testing"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c3" {
		t.Fatalf("expected only c3, got %v", results)
	}
	if results[0].Snippet != "httptest and fakes" {
		t.Errorf("expected content snippet when summary is empty, got %q", results[0].Snippet)
	}
}

func TestPgLikePagination(t *testing.T) {
	p := NewPgLike(&fakeCardLister{cards: sampleCards()})

	results, total, err := p.Search(Query{Limit: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	results, _, err = p.Search(Query{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result on second page, got %d", len(results))
	}
}

func TestPgLikeClampsNegativePaging(t *testing.T) {
	p := NewPgLike(&fakeCardLister{cards: sampleCards()})

	// Query parameters come straight off the request; negative values
	// must not reach the slice expression.
	results, total, err := p.Search(Query{Offset: -1})
	if err != nil {
		t.Fatalf("Search with negative offset failed: %v", err)
	}
	if total != 3 || len(results) != 3 {
		t.Errorf("expected full first page, got total=%d len=%d", total, len(results))
	}

	// A negative limit behaves like an unset one.
	results, _, err = p.Search(Query{Limit: -5})
	if err != nil {
		t.Fatalf("Search with negative limit failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected default page for negative limit, got %d results", len(results))
	}

	if _, _, err := p.Search(Query{Limit: -1, Offset: -100}); err != nil {
		t.Fatalf("Search with both bounds negative failed: %v", err)
	}
}

func TestPgLikeSnippetKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("é", 300)
	p := NewPgLike(&fakeCardLister{cards: []store.KnowledgeCard{
		{ID: "c1", Title: "accents", Content: long, Tags: []string{}, OwnerTeamName: "A-Team"},
	}})

	results, _, err := p.Search(Query{Text: "accents"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	snippet := results[0].Snippet
	if !utf8.ValidString(snippet) {
		t.Fatalf("snippet is not valid UTF-8: %q", snippet)
	}
	if got := utf8.RuneCountInString(snippet); got != 200 {
		t.Errorf("expected 200-rune snippet, got %d", got)
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, NewPgLike(&fakeCardLister{cards: sampleCards()}))

	resp := svc.Search(Query{Text: "postgres"})
	if resp.Total != 1 {
		t.Fatalf("expected 1 hit, got %d", resp.Total)
	}
	if resp.Query != "postgres" {
		t.Errorf("expected query echoed back, got %q", resp.Query)
	}
	if resp.Results == nil {
		t.Error("results must not be nil")
	}
}
