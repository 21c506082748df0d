package diffview

import (
	"testing"

	"atelier/api/internal/blueprint"
)

func v1() blueprint.Blueprint {
	return blueprint.Blueprint{
		Title:       "Kickoff",
		Objectives:  []string{"Align"},
		AgendaItems: []string{"Intro"},
		Timeline:    []blueprint.TimelineStep{{Activity: "Intro", DurationEstimate: "5m"}},
	}
}

func TestCompareCarriesSequenceNumbers(t *testing.T) {
	cmp := Compare(1, 2, v1(), v1())
	if cmp.OldSequence != 1 || cmp.NewSequence != 2 {
		t.Fatalf("expected sequence pair (1,2), got (%d,%d)", cmp.OldSequence, cmp.NewSequence)
	}
}

func TestCompareIdenticalSnapshotsHasNoChangedBlocks(t *testing.T) {
	cmp := Compare(1, 1, v1(), v1())
	for _, block := range cmp.Blocks {
		if block.Changed {
			t.Fatalf("block %s reported changed for identical snapshots", block.Label)
		}
		if block.Segments != nil {
			t.Fatalf("unchanged block %s should carry no segments", block.Label)
		}
	}
}

func TestCompareObjectiveAdditionIsPreservedVerbatim(t *testing.T) {
	v2 := v1()
	v2.Objectives = []string{"Align", "Scope"}

	cmp := Compare(1, 2, v1(), v2)

	var objectives *Block
	for i := range cmp.Blocks {
		if cmp.Blocks[i].Label == "Objectives" {
			objectives = &cmp.Blocks[i]
		}
	}
	if objectives == nil {
		t.Fatal("no Objectives block in comparison")
	}
	if !objectives.Changed {
		t.Fatal("Objectives block should be marked changed")
	}
	// Both sides must reflect exactly the saved content, unmodified.
	if objectives.Old != "Align" {
		t.Fatalf("old objectives mangled: %q", objectives.Old)
	}
	if objectives.New != "Align\nScope" {
		t.Fatalf("new objectives mangled: %q", objectives.New)
	}

	var inserted string
	for _, segment := range objectives.Segments {
		if segment.Op == "insert" {
			inserted += segment.Text
		}
	}
	if inserted != "\nScope" {
		t.Fatalf("expected inline insert of the new objective, got %q", inserted)
	}
}

func TestCompareTimelineDurationChange(t *testing.T) {
	v2 := v1()
	v2.Timeline = []blueprint.TimelineStep{{Activity: "Intro", DurationEstimate: "10m"}}

	cmp := Compare(1, 2, v1(), v2)
	for _, block := range cmp.Blocks {
		if block.Label != "Timeline" {
			continue
		}
		if !block.Changed {
			t.Fatal("Timeline block should be marked changed")
		}
		if block.Old != "Intro (5m)" || block.New != "Intro (10m)" {
			t.Fatalf("timeline rendering wrong: old=%q new=%q", block.Old, block.New)
		}
		return
	}
	t.Fatal("no Timeline block in comparison")
}

func TestCompareBlocksStayInDocumentOrder(t *testing.T) {
	cmp := Compare(1, 2, v1(), v1())
	want := []string{"Title", "Objectives", "Agenda", "Attendees", "Timeline", "Context"}
	if len(cmp.Blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(cmp.Blocks))
	}
	for i, label := range want {
		if cmp.Blocks[i].Label != label {
			t.Fatalf("block %d: expected %s, got %s", i, label, cmp.Blocks[i].Label)
		}
	}
}
