// Package blueprint holds the workshop blueprint value type and the
// reconciliation state machine that decides whether a generated candidate
// or a locally edited copy is authoritative.
package blueprint

import "errors"

// TimelineStep is one entry in the blueprint's run-of-show.
type TimelineStep struct {
	Activity         string `json:"activity"`
	DurationEstimate string `json:"durationEstimate"`
}

// Blueprint is the structured workshop document. Values are immutable once
// captured into a version; edits produce a new value.
type Blueprint struct {
	Title          string         `json:"title"`
	Objectives     []string       `json:"objectives"`
	AgendaItems    []string       `json:"agendaItems"`
	Attendees      []string       `json:"attendees,omitempty"`
	Timeline       []TimelineStep `json:"timeline"`
	MeetingContext string         `json:"meetingContext,omitempty"`
}

var ErrMissingTitle = errors.New("blueprint title is required")

// Validate checks the minimum shape a blueprint must have before it can be
// persisted as a version.
func (b Blueprint) Validate() error {
	if b.Title == "" {
		return ErrMissingTitle
	}
	return nil
}

// Equal reports full structural equality across every field, including
// nested timeline steps. Two independently produced candidates with
// identical content compare equal, so repeated generation events cannot
// trigger a notification loop.
func (b Blueprint) Equal(other Blueprint) bool {
	if b.Title != other.Title || b.MeetingContext != other.MeetingContext {
		return false
	}
	if !stringsEqual(b.Objectives, other.Objectives) {
		return false
	}
	if !stringsEqual(b.AgendaItems, other.AgendaItems) {
		return false
	}
	if !stringsEqual(b.Attendees, other.Attendees) {
		return false
	}
	if len(b.Timeline) != len(other.Timeline) {
		return false
	}
	for i, step := range b.Timeline {
		if step != other.Timeline[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can hand a blueprint across a
// boundary without sharing slice backing arrays.
func (b Blueprint) Clone() Blueprint {
	clone := b
	clone.Objectives = append([]string(nil), b.Objectives...)
	clone.AgendaItems = append([]string(nil), b.AgendaItems...)
	clone.Attendees = append([]string(nil), b.Attendees...)
	clone.Timeline = append([]TimelineStep(nil), b.Timeline...)
	return clone
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
