package export

import (
	"bytes"
	"html/template"
	"time"

	"atelier/api/internal/blueprint"
)

// TemplateData holds data for blueprint template rendering.
type TemplateData struct {
	WorkshopName string
	Blueprint    blueprint.Blueprint
	Approved     int
	Total        int
	ExportedAt   time.Time
}

var blueprintTemplate = template.Must(template.New("blueprint").Parse(blueprintTemplateHTML))

// RenderBlueprintHTML renders the blueprint template with provided data.
func RenderBlueprintHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := blueprintTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const blueprintTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Blueprint.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; color: #333; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .context { background: #f5f5f5; padding: 1rem; border-left: 3px solid #333; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #ccc; padding: 0.5rem; text-align: left; }
  </style>
</head>
<body>
  <h1>{{.Blueprint.Title}}</h1>
  <div class="meta">{{.WorkshopName}} | approvals {{.Approved}}/{{.Total}} | exported {{.ExportedAt.Format "Jan 2, 2006"}}</div>

  {{if .Blueprint.MeetingContext}}<div class="context">{{.Blueprint.MeetingContext}}</div>{{end}}

  {{if .Blueprint.Objectives}}
  <h2>Objectives</h2>
  <ul>{{range .Blueprint.Objectives}}<li>{{.}}</li>{{end}}</ul>
  {{end}}

  {{if .Blueprint.AgendaItems}}
  <h2>Agenda</h2>
  <ol>{{range .Blueprint.AgendaItems}}<li>{{.}}</li>{{end}}</ol>
  {{end}}

  {{if .Blueprint.Attendees}}
  <h2>Attendees</h2>
  <ul>{{range .Blueprint.Attendees}}<li>{{.}}</li>{{end}}</ul>
  {{end}}

  {{if .Blueprint.Timeline}}
  <h2>Timeline</h2>
  <table>
    <tr><th>Activity</th><th>Duration</th></tr>
    {{range .Blueprint.Timeline}}<tr><td>{{.Activity}}</td><td>{{.DurationEstimate}}</td></tr>{{end}}
  </table>
  {{end}}
</body>
</html>`
