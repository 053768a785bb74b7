package stream

import (
	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

// Sink is the narrow render interface the engine emits through. Sinks only
// materialize entries visually; they never mutate them. A sink must be
// idempotent under repeated UpdateInPlace calls for the same logical entry.
type Sink interface {
	// Emit hands a new entry to the sink. The engine retains ownership.
	Emit(entry *model.TimelineEntry)

	// UpdateInPlace applies a partial payload to a previously emitted entry.
	UpdateInPlace(entryID string, patch model.EntryPatch)

	// SetActivity reports the current busy state.
	SetActivity(state Activity)
}
