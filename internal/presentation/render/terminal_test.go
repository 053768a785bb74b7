package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/stream"
)

func newSink() (*TerminalSink, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewTerminalSink(buf, agent.NewDirectory()), buf
}

func messageEntry(id string, text string, streaming bool) *model.TimelineEntry {
	return &model.TimelineEntry{
		ID:        id,
		Kind:      model.EntryAssistantMessage,
		Source:    model.SourceMain,
		Timestamp: time.Now(),
		Text:      text,
		Streaming: streaming,
	}
}

func TestEmitPrintsHeaderAndText(t *testing.T) {
	sink, buf := newSink()
	sink.Emit(messageEntry("e1", "hello there", false))

	out := buf.String()
	assert.Contains(t, out, "Main Agent")
	assert.Contains(t, out, "hello there")
}

func TestConsecutiveEntrySkipsHeader(t *testing.T) {
	sink, buf := newSink()
	entry := messageEntry("e1", "follow-up", false)
	entry.Consecutive = true
	sink.Emit(entry)

	assert.NotContains(t, buf.String(), "Main Agent")
	assert.Contains(t, buf.String(), "follow-up")
}

func TestStreamingUpdateAppendsSuffixOnly(t *testing.T) {
	sink, buf := newSink()
	sink.Emit(messageEntry("e1", "Hel", true))
	buf.Reset()

	full := "Hello world"
	sink.UpdateInPlace("e1", model.EntryPatch{Text: &full})
	assert.Equal(t, "lo world", buf.String(), "only the unseen portion is printed")

	buf.Reset()
	sink.UpdateInPlace("e1", model.EntryPatch{Text: &full})
	assert.Empty(t, buf.String(), "a repeated identical patch prints nothing")
}

func TestContextMarkersRendered(t *testing.T) {
	sink, buf := newSink()
	sink.Emit(&model.TimelineEntry{ID: "m1", Kind: model.EntryContextStart, Source: "agent-1"})
	sink.Emit(&model.TimelineEntry{ID: "m2", Kind: model.EntryContextEnd, Source: "agent-1"})

	out := buf.String()
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "finished")
}

func TestToolStatusPrintedOncePerTransition(t *testing.T) {
	sink, buf := newSink()
	sink.Emit(messageEntry("e1", "", true))

	running := []*model.ToolInvocation{{ID: "t1", Name: "Search", Status: model.ToolRunning}}
	sink.UpdateInPlace("e1", model.EntryPatch{Tools: running})
	sink.UpdateInPlace("e1", model.EntryPatch{Tools: running})
	assert.Equal(t, 1, strings.Count(buf.String(), "Search"), "unchanged status is not re-rendered")

	done := []*model.ToolInvocation{{ID: "t1", Name: "Search", Status: model.ToolComplete, Result: "3 hits"}}
	sink.UpdateInPlace("e1", model.EntryPatch{Tools: done})
	assert.Contains(t, buf.String(), "3 hits")
}

func TestActivityStatusLineClearedBeforeOutput(t *testing.T) {
	sink, buf := newSink()
	sink.SetActivity(stream.Activity{Kind: stream.ActivityThinking})
	require.Contains(t, buf.String(), "thinking")

	buf.Reset()
	sink.Emit(messageEntry("e1", "text", false))
	assert.True(t, strings.HasPrefix(buf.String(), "\033[2K\r"),
		"the transient status line is cleared before permanent output")
}

func TestIdleActivityShowsNothing(t *testing.T) {
	sink, buf := newSink()
	sink.SetActivity(stream.Activity{Kind: stream.ActivityIdle})
	assert.Empty(t, buf.String())
}
