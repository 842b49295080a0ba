package enrich

import (
	"context"
	"strings"
)

// StubProvider produces deterministic enrichments without calling an
// external API. Used when no API key is configured and in tests.
type StubProvider struct{}

func (StubProvider) Enrich(_ context.Context, input Input) (Result, error) {
	summary := input.Content
	if len(summary) > 160 {
		summary = summary[:160]
	}
	if summary == "" {
		summary = input.Title
	}

	tags := []string{}
	seen := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(input.Title)) {
		word = strings.Trim(word, ".,:;!?")
		if len(word) < 4 || seen[word] || len(tags) == maxTags {
			continue
		}
		seen[word] = true
		tags = append(tags, word)
	}

	related := make([]string, 0, maxRelatedCards)
	for _, c := range input.Candidates {
		if len(related) == maxRelatedCards {
			break
		}
		related = append(related, c.ID)
	}

	return Result{Summary: summary, Tags: tags, RelatedCards: related}, nil
}
