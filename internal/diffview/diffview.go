// Package diffview turns two blueprint snapshots into ordered content
// blocks for a side-by-side comparison. It is a read-only rendering
// surface: the version store hands it exactly two historical states and it
// never mutates either.
package diffview

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"atelier/api/internal/blueprint"
)

// Segment is one run of an inline diff within a changed block.
type Segment struct {
	Op   string `json:"op"` // "equal", "insert", "delete"
	Text string `json:"text"`
}

// Block is one compared section of the blueprint, in document order.
type Block struct {
	Label    string    `json:"label"`
	Old      string    `json:"old"`
	New      string    `json:"new"`
	Changed  bool      `json:"changed"`
	Segments []Segment `json:"segments,omitempty"`
}

// Comparison is the full result for a version pair.
type Comparison struct {
	OldSequence int64   `json:"old"`
	NewSequence int64   `json:"new"`
	Blocks      []Block `json:"blocks"`
}

// Compare renders both snapshots into section blocks and computes inline
// diffs for the sections that changed.
func Compare(oldSeq, newSeq int64, oldBP, newBP blueprint.Blueprint) Comparison {
	dmp := diffmatchpatch.New()

	sections := []struct {
		label string
		old   string
		new   string
	}{
		{"Title", oldBP.Title, newBP.Title},
		{"Objectives", joinLines(oldBP.Objectives), joinLines(newBP.Objectives)},
		{"Agenda", joinLines(oldBP.AgendaItems), joinLines(newBP.AgendaItems)},
		{"Attendees", joinLines(oldBP.Attendees), joinLines(newBP.Attendees)},
		{"Timeline", renderTimeline(oldBP.Timeline), renderTimeline(newBP.Timeline)},
		{"Context", oldBP.MeetingContext, newBP.MeetingContext},
	}

	blocks := make([]Block, 0, len(sections))
	for _, section := range sections {
		block := Block{Label: section.label, Old: section.old, New: section.new}
		if section.old != section.new {
			block.Changed = true
			diffs := dmp.DiffMain(section.old, section.new, false)
			diffs = dmp.DiffCleanupSemantic(diffs)
			block.Segments = toSegments(diffs)
		}
		blocks = append(blocks, block)
	}

	return Comparison{OldSequence: oldSeq, NewSequence: newSeq, Blocks: blocks}
}

func joinLines(items []string) string {
	return strings.Join(items, "\n")
}

func renderTimeline(steps []blueprint.TimelineStep) string {
	lines := make([]string, 0, len(steps))
	for _, step := range steps {
		line := step.Activity
		if step.DurationEstimate != "" {
			line += " (" + step.DurationEstimate + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func toSegments(diffs []diffmatchpatch.Diff) []Segment {
	segments := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		var op string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = "insert"
		case diffmatchpatch.DiffDelete:
			op = "delete"
		default:
			op = "equal"
		}
		segments = append(segments, Segment{Op: op, Text: d.Text})
	}
	return segments
}
