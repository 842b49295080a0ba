// Package search provides full-text search over public knowledge cards,
// backed by Meilisearch with a Postgres fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Snippet  string   `json:"snippet"`
	Tags     []string `json:"tags"`
	TeamName string   `json:"teamName"`
}

// Query describes a search request. Only public cards are indexed, so
// results are safe to show to any authenticated user.
type Query struct {
	Text   string
	Tag    string
	Limit  int
	Offset int
}

// bounded clamps negative paging values so callers cannot push a bad
// offset or limit into a slice expression or the search backend.
func (q Query) bounded() Query {
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Summary  string   `json:"summary"`
	Tags     []string `json:"tags"`
	TeamName string   `json:"teamName"`
}
