package export

import (
	"fmt"
	"time"

	"atelier/api/internal/blueprint"
)

// Service renders blueprints for download.
type Service struct{}

// NewService creates an export service.
func NewService() *Service {
	return &Service{}
}

// Input is everything the renderer needs about the workshop.
type Input struct {
	WorkshopName string
	Blueprint    blueprint.Blueprint
	Approved     int
	Total        int
}

// Render produces the requested format for the given blueprint.
func (s *Service) Render(input Input, format Format) (*Result, error) {
	html, err := RenderBlueprintHTML(TemplateData{
		WorkshopName: input.WorkshopName,
		Blueprint:    input.Blueprint,
		Approved:     input.Approved,
		Total:        input.Total,
		ExportedAt:   time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render blueprint html: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(input.Blueprint.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, input.Blueprint.Title)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
