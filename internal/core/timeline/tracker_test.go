package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

func kinds(entries []*model.TimelineEntry) []model.EntryKind {
	out := make([]model.EntryKind, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Kind)
	}
	return out
}

func TestMainWithNoOpenContext(t *testing.T) {
	tr := NewContextTracker()
	markers, changed := tr.Transition(model.SourceMain)
	assert.Empty(t, markers)
	assert.False(t, changed)
}

func TestSubagentOpensContext(t *testing.T) {
	tr := NewContextTracker()

	markers, changed := tr.Transition("agent-1")
	require.Len(t, markers, 1)
	assert.Equal(t, model.EntryContextStart, markers[0].Kind)
	assert.Equal(t, model.Source("agent-1"), markers[0].Source)
	assert.True(t, changed)

	open, ok := tr.Open()
	assert.True(t, ok)
	assert.Equal(t, model.Source("agent-1"), open)
}

func TestSameSubagentIsQuiet(t *testing.T) {
	tr := NewContextTracker()
	tr.Transition("agent-1")

	markers, changed := tr.Transition("agent-1")
	assert.Empty(t, markers)
	assert.False(t, changed)
}

func TestMainClosesOpenContext(t *testing.T) {
	tr := NewContextTracker()
	tr.Transition("agent-1")

	markers, changed := tr.Transition(model.SourceMain)
	require.Len(t, markers, 1)
	assert.Equal(t, model.EntryContextEnd, markers[0].Kind)
	assert.Equal(t, model.Source("agent-1"), markers[0].Source)
	assert.True(t, changed)

	_, ok := tr.Open()
	assert.False(t, ok)
}

func TestSwitchClosesThenOpens(t *testing.T) {
	tr := NewContextTracker()
	tr.Transition("agent-1")

	markers, changed := tr.Transition("agent-2")
	require.Equal(t, []model.EntryKind{model.EntryContextEnd, model.EntryContextStart}, kinds(markers))
	assert.Equal(t, model.Source("agent-1"), markers[0].Source)
	assert.Equal(t, model.Source("agent-2"), markers[1].Source)
	assert.True(t, changed)

	open, _ := tr.Open()
	assert.Equal(t, model.Source("agent-2"), open, "at most one context is ever open")
}

func TestFinishClosesOpenContext(t *testing.T) {
	tr := NewContextTracker()
	tr.Transition("agent-1")

	closed := tr.Finish()
	require.Len(t, closed, 1)
	assert.Equal(t, model.EntryContextEnd, closed[0].Kind)
	assert.Empty(t, tr.Finish(), "second finish is a no-op")
}

func TestResetDropsStateSilently(t *testing.T) {
	tr := NewContextTracker()
	tr.Transition("agent-1")
	tr.Reset()
	_, ok := tr.Open()
	assert.False(t, ok)
}
