package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var cardTemplate = template.Must(template.New("card").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(cardTemplateHTML))

// TemplateData holds data for card template rendering
type TemplateData struct {
	Title      string
	Summary    string
	Content    string
	Tags       []string
	TeamName   string
	Author     string
	Visibility string
	LikeCount  int
	UpdatedAt  time.Time
	Comments   []TemplateComment
}

// TemplateComment holds comment data for the template
type TemplateComment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// RenderCardHTML renders the card template with provided data
func RenderCardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const cardTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1rem; }
    .summary { background: #f0f4ff; padding: 1rem; border-left: 3px solid #3355cc; margin: 1rem 0; }
    .tags span { background: #eee; border-radius: 3px; padding: 0.1rem 0.5rem; margin-right: 0.4rem; font-size: 0.85em; }
    .content { white-space: pre-wrap; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
    .comment .who { color: #666; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.TeamName}} | {{.Author}} | {{lower .Visibility}} | {{.LikeCount}} likes | {{formatDate .UpdatedAt "Jan 2, 2006"}}</div>
  {{if .Tags}}<div class="tags">{{range .Tags}}<span>{{.}}</span>{{end}}</div>{{end}}
  {{if .Summary}}<div class="summary">{{.Summary}}</div>{{end}}
  <div class="content">{{.Content}}</div>
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}<div class="comment"><div class="who">{{.Author}} | {{formatDate .CreatedAt "Jan 2, 2006 15:04"}}</div>{{.Body}}</div>{{end}}
  {{end}}
</body>
</html>`
