package blueprint

import (
	"context"
	"sync"
)

// State is the reconciler's view of how the local blueprint relates to the
// last generated candidate.
type State int

const (
	// StateEmpty means no blueprint has been produced or edited yet.
	StateEmpty State = iota
	// StateGenerated means a candidate arrived but has not been adopted.
	StateGenerated
	// StateSynced means the local blueprint equals the last generated one.
	StateSynced
	// StateModified means direct local edits diverged from the last
	// generated candidate.
	StateModified
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateGenerated:
		return "generated"
	case StateSynced:
		return "synced"
	case StateModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Reason identifies which operation caused a transition.
type Reason string

const (
	ReasonGenerated Reason = "generated"
	ReasonEdited    Reason = "edited"
	ReasonSaved     Reason = "saved"
)

// Transition is the discrete event observers receive instead of diffing
// derived state themselves.
type Transition struct {
	From      State
	To        State
	Reason    Reason
	Blueprint Blueprint
}

// PersistFunc is the persistence collaborator invoked by OnSaveRequested.
type PersistFunc func(ctx context.Context, b Blueprint) error

// Reconciler merges externally generated candidates with locally held
// edits. It is exclusively owned by one client; the mutex only guards
// against observer callbacks re-entering from another goroutine.
type Reconciler struct {
	mu            sync.Mutex
	state         State
	local         Blueprint
	lastGenerated Blueprint
	hasGenerated  bool
	observer      func(Transition)
}

// NewReconciler creates a reconciler in StateEmpty. observer may be nil.
func NewReconciler(observer func(Transition)) *Reconciler {
	return &Reconciler{state: StateEmpty, observer: observer}
}

// State returns the current reconciliation state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Local returns a copy of the authoritative local blueprint.
func (r *Reconciler) Local() Blueprint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local.Clone()
}

// OnGenerated ingests an externally produced candidate. A candidate that is
// structurally equal to the current local blueprint is dropped without a
// transition or notification, so repeated identical generation events are
// idempotent. An unequal candidate always wins, including over StateModified
// local edits; the transition carries the prior state so callers can warn
// about discarded work.
func (r *Reconciler) OnGenerated(candidate Blueprint) bool {
	r.mu.Lock()
	if r.state != StateEmpty && candidate.Equal(r.local) {
		r.mu.Unlock()
		return false
	}
	from := r.state
	r.local = candidate.Clone()
	r.lastGenerated = candidate.Clone()
	r.hasGenerated = true
	r.state = StateSynced
	observer := r.observer
	event := Transition{From: from, To: StateSynced, Reason: ReasonGenerated, Blueprint: candidate.Clone()}
	r.mu.Unlock()

	if observer != nil {
		observer(event)
	}
	return true
}

// OnLocalEdit records a direct edit. The last generated reference is kept
// so a later identical generation event is still recognized as such.
func (r *Reconciler) OnLocalEdit(newLocal Blueprint) {
	r.mu.Lock()
	from := r.state
	r.local = newLocal.Clone()
	r.state = StateModified
	observer := r.observer
	event := Transition{From: from, To: StateModified, Reason: ReasonEdited, Blueprint: newLocal.Clone()}
	r.mu.Unlock()

	if observer != nil && from != StateModified {
		observer(event)
	}
}

// OnSaveRequested invokes the persistence collaborator with newLocal. Only
// on success is newLocal committed as the authoritative local state; on
// failure local state is untouched and the error is returned to the caller.
func (r *Reconciler) OnSaveRequested(ctx context.Context, newLocal Blueprint, persist PersistFunc) error {
	if err := persist(ctx, newLocal); err != nil {
		return err
	}

	r.mu.Lock()
	from := r.state
	r.local = newLocal.Clone()
	if r.hasGenerated && newLocal.Equal(r.lastGenerated) {
		r.state = StateSynced
	} else {
		r.state = StateModified
	}
	to := r.state
	observer := r.observer
	event := Transition{From: from, To: to, Reason: ReasonSaved, Blueprint: newLocal.Clone()}
	r.mu.Unlock()

	if observer != nil && from != to {
		observer(event)
	}
	return nil
}
