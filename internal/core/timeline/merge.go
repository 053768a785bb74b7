package timeline

import (
	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

// MergeEngine converts a complete, chronologically ordered historical
// timeline into final render entries in a single pass. Input ordering is the
// fetch service's responsibility; the engine never re-sorts. Merge is a pure
// function of its input: replaying the same events yields a structurally
// identical entry sequence.
type MergeEngine struct{}

// NewMergeEngine creates a batch merge engine.
func NewMergeEngine() *MergeEngine {
	return &MergeEngine{}
}

// Merge produces the ordered entry sequence for a historical timeline.
// Empty messages are suppressed before any context transition is considered,
// so a suppressed turn can neither open nor close a context. A trailing
// synthetic close is appended if the last turn left a subagent context open.
func (e *MergeEngine) Merge(events []model.ChronologicalEvent) []*model.TimelineEntry {
	tracker := NewContextTracker()
	entries := make([]*model.TimelineEntry, 0, len(events))
	var prev *Speaker

	for _, ev := range events {
		msg := ev.Message
		if msg.IsEmpty() {
			continue
		}
		msg.Source = ev.Source
		if msg.Timestamp.IsZero() {
			msg.Timestamp = ev.Timestamp
		}

		markers, changed := tracker.Transition(ev.Source)
		entries = append(entries, markers...)

		next := Speaker{Role: msg.Role, Source: ev.Source}
		entry := NewMessageEntry(msg, IsConsecutive(prev, next, changed))
		entries = append(entries, entry)
		prev = &next
	}

	entries = append(entries, tracker.Finish()...)
	return entries
}
