package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/session"
	"github.com/penwyp/go-agent-timeline/internal/core/stream"
	"github.com/penwyp/go-agent-timeline/internal/testing/sinktest"
)

func newSession(t *testing.T) (*session.TimelineSession, *sinktest.RecordingSink) {
	t.Helper()
	sink := sinktest.NewRecordingSink()
	return session.New("sess-1", sink, agent.NewDirectory(), session.Config{QuietInterval: time.Hour}), sink
}

func TestStaleSessionDeltaDiscarded(t *testing.T) {
	sess, sink := newSession(t)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, SessionID: "sess-OLD", Source: model.SourceMain, Text: "ghost"})
	assert.Empty(t, sink.Entries, "deltas for another conversation never touch state")

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, SessionID: "sess-1", Source: model.SourceMain, Text: "real"})
	require.Len(t, sink.Entries, 1)
	assert.Equal(t, "real", sink.Entries[0].Text)
}

func TestMalformedDeltaBetweenValidOnes(t *testing.T) {
	sess, sink := newSession(t)

	sess.HandleRaw([]byte(`{"type":"text-delta","source":"main","text":"Hel"}`))
	sess.HandleRaw([]byte(`{"type":"text-delta","source":`))
	sess.HandleRaw([]byte(`{"type":"text-delta","source":"main","text":"lo"}`))

	require.Len(t, sink.Entries, 1)
	assert.Equal(t, "Hello", sink.Entries[0].Text,
		"the malformed payload is dropped without corrupting accumulation")
}

func TestUnknownDeltaTypeDropped(t *testing.T) {
	sess, sink := newSession(t)
	sess.HandleRaw([]byte(`{"type":"telemetry","source":"main"}`))
	assert.Empty(t, sink.Entries)
}

func TestCloseFinalizesAndRejectsLaterDeltas(t *testing.T) {
	sess, sink := newSession(t)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, Source: "agent-1", Text: "going"})
	sess.Close()

	last := sink.Entries[len(sink.Entries)-1]
	assert.Equal(t, model.EntryContextEnd, last.Kind, "teardown closes the open context")
	assert.Equal(t, stream.ActivityIdle, sink.LastActivity().Kind)

	before := len(sink.Entries)
	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, Source: model.SourceMain, Text: "late"})
	assert.Len(t, sink.Entries, before, "deltas after teardown are rejected")
}

func TestHandleDeltaDrivesActivity(t *testing.T) {
	sess, sink := newSession(t)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, Source: model.SourceMain, Text: "hi"})
	assert.Equal(t, stream.ActivityThinking, sess.Activity().Kind)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaToolStart, Source: model.SourceMain,
		Tool: &model.ToolInvocation{ID: "t1", Name: "Search"}})
	assert.Equal(t, stream.Activity{Kind: stream.ActivityToolExecuting, ToolName: "Search"}, sess.Activity())

	sess.HandleDelta(stream.Delta{Type: stream.DeltaToolResult, ToolID: "t1", Result: "ok", Source: model.SourceMain})
	assert.Equal(t, stream.ActivityThinking, sess.Activity().Kind)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaUserMessage, Source: model.SourceMain, Text: "thanks"})
	assert.Equal(t, stream.ActivityIdle, sess.Activity().Kind)

	// Activity changes were reported through the sink as well.
	assert.NotEmpty(t, sink.Activities)
}

func TestLoadHistorySeedsConsecutiveGrouping(t *testing.T) {
	sess, sink := newSession(t)

	now := time.Now()
	sess.LoadHistory([]model.ChronologicalEvent{
		{
			Source:    model.SourceMain,
			Timestamp: now,
			Message:   model.Message{Role: model.RoleAssistant, Text: "from history", Timestamp: now},
		},
	}, nil)
	require.Len(t, sink.Entries, 1)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, Source: model.SourceMain, Text: "live"})
	require.Len(t, sink.Entries, 2)
	assert.True(t, sink.Entries[1].Consecutive,
		"the live stream continues the last historical run")
}

func TestLoadHistoryTrailingMarkerBreaksRun(t *testing.T) {
	sess, sink := newSession(t)

	now := time.Now()
	sess.LoadHistory([]model.ChronologicalEvent{
		{
			Source:    "agent-1",
			Timestamp: now,
			Message:   model.Message{Role: model.RoleAssistant, Text: "inside", Timestamp: now},
		},
	}, nil)
	// start, message, synthetic trailing close
	require.Len(t, sink.Entries, 3)

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, Source: "agent-1", Text: "live"})
	entries := sink.Entries
	assert.False(t, entries[len(entries)-1].Consecutive,
		"a trailing context close interrupts any run")
}

func TestLoadMessagesRendersMainOnly(t *testing.T) {
	sess, sink := newSession(t)

	now := time.Now()
	sess.LoadMessages([]model.Message{
		{Role: model.RoleUser, Text: "hi", Timestamp: now, Source: "agent-1"},
		{Role: model.RoleAssistant, Text: "hello", Timestamp: now.Add(time.Second)},
	}, nil)

	require.Len(t, sink.Entries, 2)
	for _, e := range sink.Entries {
		assert.Equal(t, model.SourceMain, e.Source,
			"without a pre-merged timeline everything renders as the main stream")
		assert.False(t, e.IsContextMarker())
	}
}

func TestLoadHistoryRegistersMetadata(t *testing.T) {
	sink := sinktest.NewRecordingSink()
	directory := agent.NewDirectory()
	sess := session.New("sess-1", sink, directory, session.Config{QuietInterval: time.Hour})

	sess.LoadHistory(nil, map[model.Source]model.AgentInfo{
		"agent-1": {DisplayName: "Researcher", DomainTag: "research"},
	})

	assert.True(t, directory.Known("agent-1"))
	assert.Equal(t, "Researcher", directory.Resolve("agent-1").DisplayName)
}

func TestQuietIntervalReportsIdleThroughSink(t *testing.T) {
	sink := sinktest.NewRecordingSink()
	sess := session.New("sess-1", sink, agent.NewDirectory(), session.Config{QuietInterval: 20 * time.Millisecond})

	sess.HandleDelta(stream.Delta{Type: stream.DeltaText, Source: model.SourceMain, Text: "hi"})
	require.Equal(t, stream.ActivityThinking, sess.Activity().Kind)

	assert.Eventually(t, func() bool {
		return sink.LastActivity().Kind == stream.ActivityIdle
	}, time.Second, 5*time.Millisecond)
}
