package timeline

import (
	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

// ContextTracker decides, per incoming event, whether a subagent context
// boundary must be opened or closed. At most one subagent context is open at
// any time; opening a second closes the first. The open field is the single
// source of truth - state is never derived from previously rendered output.
type ContextTracker struct {
	open *model.Source
}

// NewContextTracker creates a tracker with no open context.
func NewContextTracker() *ContextTracker {
	return &ContextTracker{}
}

// Open returns the currently open subagent, if any.
func (t *ContextTracker) Open() (model.Source, bool) {
	if t.open == nil {
		return "", false
	}
	return *t.open, true
}

// Transition processes an incoming source and returns the context marker
// entries required before its message, in close-then-open order, plus
// whether the open context changed. At most one close/open pair is returned
// per call.
func (t *ContextTracker) Transition(incoming model.Source) ([]*model.TimelineEntry, bool) {
	switch {
	case incoming.IsMain() && t.open == nil:
		return nil, false

	case incoming.IsMain():
		closed := NewContextEntry(model.EntryContextEnd, *t.open)
		t.open = nil
		return []*model.TimelineEntry{closed}, true

	case t.open == nil:
		t.open = &incoming
		return []*model.TimelineEntry{NewContextEntry(model.EntryContextStart, incoming)}, true

	case *t.open == incoming:
		return nil, false

	default:
		closed := NewContextEntry(model.EntryContextEnd, *t.open)
		t.open = &incoming
		opened := NewContextEntry(model.EntryContextStart, incoming)
		return []*model.TimelineEntry{closed, opened}, true
	}
}

// Finish emits a synthetic close entry if a context is still open. Used at
// stream end and view teardown.
func (t *ContextTracker) Finish() []*model.TimelineEntry {
	if t.open == nil {
		return nil
	}
	closed := NewContextEntry(model.EntryContextEnd, *t.open)
	t.open = nil
	return []*model.TimelineEntry{closed}
}

// Reset clears the tracker to its initial state without emitting entries.
func (t *ContextTracker) Reset() {
	t.open = nil
}
