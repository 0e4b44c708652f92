package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var boardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	boardTemplate = template.Must(template.New("board").Funcs(funcMap).Parse(boardTemplateHTML))
}

// RenderBoardHTML renders the board template with provided data
func RenderBoardHTML(data BoardData) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const boardTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #111827; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .list { margin: 1.5rem 0; }
    .list h2 { font-size: 1.1em; background: #f3f4f6; padding: 0.4rem 0.6rem; border-radius: 4px; }
    .card { padding: 0.5rem 0.75rem; margin: 0.4rem 0; border: 1px solid #e5e7eb; border-radius: 4px; page-break-inside: avoid; }
    .card.complete .title { text-decoration: line-through; color: #6b7280; }
    .description { color: #4b5563; font-size: 0.9em; margin-top: 0.25rem; }
    .empty { color: #9ca3af; font-style: italic; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div class="meta">{{.OrganizationName}} | exported {{formatDate .ExportedAt "Jan 2, 2006 15:04"}}</div>
  {{range .Lists}}
  <div class="list">
    <h2>{{.Title}}</h2>
    {{if .Cards}}
      {{range .Cards}}
      <div class="card{{if .IsComplete}} complete{{end}}">
        <div class="title">{{if .IsComplete}}&#10003; {{end}}{{.Title}}</div>
        {{if .Description}}<div class="description">{{.Description}}</div>{{end}}
      </div>
      {{end}}
    {{else}}
      <div class="empty">No cards</div>
    {{end}}
  </div>
  {{end}}
</body>
</html>`
