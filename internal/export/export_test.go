package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderCardHTML(t *testing.T) {
	data := TemplateData{
		Title:      "Postgres Indexing",
		Summary:    "A short overview of index types.",
		Content:    "GIN indexes work well for jsonb columns.",
		Tags:       []string{"postgres", "performance"},
		TeamName:   "A-Team",
		Author:     "Ada",
		Visibility: "PUBLIC",
		LikeCount:  4,
		UpdatedAt:  time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Comments: []TemplateComment{
			{Author: "Grace", Body: "Very helpful.", CreatedAt: time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)},
		},
	}

	html, err := RenderCardHTML(data)
	if err != nil {
		t.Fatalf("RenderCardHTML failed: %v", err)
	}

	for _, want := range []string{
		"Postgres Indexing",
		"A short overview of index types.",
		"GIN indexes work well",
		"<span>postgres</span>",
		"A-Team",
		"public",
		"4 likes",
		"Mar 14, 2025",
		"Very helpful.",
		"Grace",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderCardHTMLEscapesContent(t *testing.T) {
	html, err := RenderCardHTML(TemplateData{
		Title:   "XSS",
		Content: `<script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("RenderCardHTML failed: %v", err)
	}
	if strings.Contains(html, `<script>alert`) {
		t.Error("card content must be HTML-escaped")
	}
}

func TestRenderCardHTMLOmitsEmptySections(t *testing.T) {
	html, err := RenderCardHTML(TemplateData{Title: "Bare"})
	if err != nil {
		t.Fatalf("RenderCardHTML failed: %v", err)
	}
	if strings.Contains(html, "Comments") {
		t.Error("comments heading should be omitted without comments")
	}
	if strings.Contains(html, `class="summary"`) {
		t.Error("summary block should be omitted when empty")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Postgres Indexing", "Postgres-Indexing"},
		{"weird/chars:here?", "weirdcharshere"},
		{"", "card"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Errorf("unexpected encoding %q", got)
	}
	if strings.Contains(percentEncodeForDataURL("x y"), "+") {
		t.Error("spaces must encode as %20, not +")
	}
}
