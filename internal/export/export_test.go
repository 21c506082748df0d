package export

import (
	"strings"
	"testing"

	"atelier/api/internal/blueprint"
)

func testInput() Input {
	return Input{
		WorkshopName: "Q3 Planning",
		Blueprint: blueprint.Blueprint{
			Title:       "Kickoff",
			Objectives:  []string{"Align", "Scope"},
			AgendaItems: []string{"Intro"},
			Attendees:   []string{"Avery"},
			Timeline: []blueprint.TimelineStep{
				{Activity: "Intro", DurationEstimate: "5m"},
			},
			MeetingContext: "Quarterly planning session",
		},
		Approved: 2,
		Total:    3,
	}
}

func TestRenderHTMLContainsAllSections(t *testing.T) {
	result, err := NewService().Render(testInput(), FormatHTML)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Fatalf("unexpected mime type %s", result.MimeType)
	}

	html := string(result.Data)
	for _, want := range []string{
		"Kickoff", "Align", "Scope", "Intro", "Avery", "5m",
		"Quarterly planning session", "approvals 2/3",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderHTMLEscapesContent(t *testing.T) {
	input := testInput()
	input.Blueprint.Title = `<script>alert("x")</script>`

	result, err := NewService().Render(input, FormatHTML)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(string(result.Data), "<script>alert") {
		t.Fatal("blueprint content must be HTML-escaped")
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	_, err := NewService().Render(testInput(), Format("docx"))
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Kickoff Workshop", "Kickoff-Workshop"},
		{"a/b\\c:d", "abcd"},
		{"", "blueprint"},
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
		t.Fatalf("percentEncodeForDataURL = %q", got)
	}
}
