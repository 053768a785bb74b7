// Package sinktest provides a recording render sink for engine tests.
package sinktest

import (
	"sync"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/stream"
)

// Update is one recorded UpdateInPlace call.
type Update struct {
	EntryID string
	Patch   model.EntryPatch
}

// RecordingSink captures every sink call for later assertions. Entries are
// recorded by pointer, so tests observe in-place mutations the engine makes
// after emission.
type RecordingSink struct {
	mu         sync.Mutex
	Entries    []*model.TimelineEntry
	Updates    []Update
	Activities []stream.Activity
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (r *RecordingSink) Emit(entry *model.TimelineEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, entry)
}

func (r *RecordingSink) UpdateInPlace(entryID string, patch model.EntryPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updates = append(r.Updates, Update{EntryID: entryID, Patch: patch})
}

func (r *RecordingSink) SetActivity(state stream.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Activities = append(r.Activities, state)
}

// Entry returns the recorded entry with the given id, or nil.
func (r *RecordingSink) Entry(id string) *model.TimelineEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// LastActivity returns the most recently reported activity.
func (r *RecordingSink) LastActivity() stream.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Activities) == 0 {
		return stream.Activity{Kind: stream.ActivityIdle}
	}
	return r.Activities[len(r.Activities)-1]
}

// UpdatesFor returns every recorded update for one entry id.
func (r *RecordingSink) UpdatesFor(entryID string) []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Update
	for _, u := range r.Updates {
		if u.EntryID == entryID {
			out = append(out, u)
		}
	}
	return out
}
