// Package export renders a workshop blueprint to HTML and, when a headless
// Chromium is available, to PDF.
package export

import "errors"

// Format selects the export output.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Result is a rendered export ready to be served as a download.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for formats the service cannot render.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing is returned when no Chromium binary is installed.
	ErrPDFDependencyMissing = errors.New("pdf export dependency missing")
)
