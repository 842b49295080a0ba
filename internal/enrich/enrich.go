// Package enrich generates a summary, tags, and related-card links for
// a knowledge card using a language model provider.
package enrich

import "context"

// FallbackSummary replaces the whole result when the provider fails.
// Cards are always saved, enriched or not.
const FallbackSummary = "AI-generated summary unavailable at this time."

// MissingSummary stands in when the provider answers without a summary;
// the tags and related cards it returned are kept.
const MissingSummary = "AI-generated summary unavailable."

const (
	maxTags         = 5
	maxRelatedCards = 3
)

// Candidate is an existing card the provider may link as related.
type Candidate struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Input is the material the provider sees for one card.
type Input struct {
	Title      string
	Content    string
	Candidates []Candidate
}

// Result is the enrichment outcome applied to a card.
type Result struct {
	Summary      string   `json:"summary"`
	Tags         []string `json:"tags"`
	RelatedCards []string `json:"relatedCards"`
}

// Provider produces an enrichment for a card.
type Provider interface {
	Enrich(ctx context.Context, input Input) (Result, error)
}

// Service wraps a Provider and guarantees a usable Result: provider
// failures degrade to the fallback summary, and the output is clamped
// to the tag and related-card limits with unknown card IDs dropped.
type Service struct {
	provider Provider
}

func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

func (s *Service) Enrich(ctx context.Context, input Input) Result {
	result, err := s.provider.Enrich(ctx, input)
	if err != nil {
		return Result{Summary: FallbackSummary, Tags: []string{}, RelatedCards: []string{}}
	}
	if result.Summary == "" {
		result.Summary = MissingSummary
	}
	return sanitize(result, input.Candidates)
}

func sanitize(result Result, candidates []Candidate) Result {
	if len(result.Tags) > maxTags {
		result.Tags = result.Tags[:maxTags]
	}
	if result.Tags == nil {
		result.Tags = []string{}
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}
	related := make([]string, 0, maxRelatedCards)
	for _, id := range result.RelatedCards {
		if !known[id] {
			continue
		}
		related = append(related, id)
		if len(related) == maxRelatedCards {
			break
		}
	}
	result.RelatedCards = related
	return result
}
