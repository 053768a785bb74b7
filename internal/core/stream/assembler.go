package stream

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/timeline"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

// inflight is the transient state of one message being assembled. It is
// created on the first delta for a new message and destroyed on finalize.
type inflight struct {
	entry     *model.TimelineEntry
	source    model.Source
	text      strings.Builder
	thinking  strings.Builder
	tools     map[string]*model.ToolInvocation
	startedAt time.Time
}

// Assembler consumes incremental deltas for in-flight messages and produces
// a single growing entry per message, reconciling provisional data with the
// final authoritative payload on completion. Placement (context markers,
// consecutive grouping) is decided before the entry is first emitted.
type Assembler struct {
	sink    Sink
	tracker *timeline.ContextTracker
	prev    *timeline.Speaker
	active  *inflight
}

// NewAssembler creates an assembler emitting through sink.
func NewAssembler(sink Sink) *Assembler {
	return &Assembler{
		sink:    sink,
		tracker: timeline.NewContextTracker(),
	}
}

// SeedSpeaker primes consecutive grouping with the last speaker of a
// previously rendered batch, so the first live entry can continue its run.
func (a *Assembler) SeedSpeaker(prev *timeline.Speaker) {
	a.prev = prev
}

// AppendText appends a text fragment to the in-flight message for source,
// creating it if needed, and re-emits an in-place update.
func (a *Assembler) AppendText(source model.Source, text string) {
	st := a.ensure(source)
	st.text.WriteString(text)
	full := st.text.String()
	st.entry.Text = full
	a.sink.UpdateInPlace(st.entry.ID, model.EntryPatch{Text: &full})
}

// AppendThinking appends a thinking fragment. Thinking deltas carry no
// source; they attach to the current in-flight message, or start one for the
// primary agent when nothing is being assembled.
func (a *Assembler) AppendThinking(text string) {
	var st *inflight
	if a.active != nil {
		st = a.active
	} else {
		st = a.ensure(model.SourceMain)
	}
	st.thinking.WriteString(text)
	full := st.thinking.String()
	st.entry.Thinking = full
	a.sink.UpdateInPlace(st.entry.ID, model.EntryPatch{Thinking: &full})
}

// StartTool upserts a tool invocation by id into the in-flight message. A
// repeated id merges fields additively - a later partial input never erases
// already-known fields - and only the tool list is re-rendered.
func (a *Assembler) StartTool(source model.Source, tool *model.ToolInvocation) {
	st := a.ensure(source)
	if existing, ok := st.tools[tool.ID]; ok {
		existing.MergeFrom(tool)
	} else {
		inv := *tool
		if inv.Status == "" {
			inv.Status = model.ToolRunning
		}
		st.tools[inv.ID] = &inv
		st.entry.Tools = append(st.entry.Tools, &inv)
	}
	a.sink.UpdateInPlace(st.entry.ID, model.EntryPatch{Tools: st.entry.Tools})
}

// ResolveTool completes a tool invocation by id. A result for an id never
// seen as a start is a late or orphan result: it surfaces as a standalone
// completed tool entry rather than being discarded.
func (a *Assembler) ResolveTool(source model.Source, toolID, result string, isError bool) {
	if a.active != nil {
		if inv, ok := a.active.tools[toolID]; ok {
			inv.Result = result
			inv.IsErr = isError
			inv.Status = model.ToolComplete
			if isError {
				inv.Status = model.ToolError
			}
			a.sink.UpdateInPlace(a.active.entry.ID, model.EntryPatch{Tools: a.active.entry.Tools})
			return
		}
	}

	util.LogWarnf("orphan tool result for invocation %s, rendering standalone", toolID)
	a.emitOrphanResult(source, toolID, result, isError)
}

// Finalize replaces the in-flight message with one built from the
// authoritative final payload. Tool invocations are reconciled by id and the
// existing instances are reused, so externally-owned interactive state that
// has not been submitted survives the swap.
func (a *Assembler) Finalize(source model.Source, finalText string, finalTools []model.ToolInvocation) {
	if a.active == nil || a.active.source != source {
		return
	}
	st := a.active

	if finalText != "" {
		st.entry.Text = finalText
	} else {
		st.entry.Text = st.text.String()
	}

	for i := range finalTools {
		final := finalTools[i]
		if final.Status == "" {
			final.Status = model.ToolComplete
		}
		if existing, ok := st.tools[final.ID]; ok {
			existing.MergeFrom(&final)
		} else {
			st.tools[final.ID] = &final
			st.entry.Tools = append(st.entry.Tools, &final)
		}
	}

	st.entry.Streaming = false
	streaming := false
	a.sink.UpdateInPlace(st.entry.ID, model.EntryPatch{
		Text:      &st.entry.Text,
		Tools:     st.entry.Tools,
		Streaming: &streaming,
	})
	a.active = nil
}

// UserMessage appends a user turn. A user turn always closes out any open
// assistant turn first, force-finalizing the in-flight message.
func (a *Assembler) UserMessage(text string) {
	if a.active != nil {
		a.Finalize(a.active.source, "", nil)
	}

	markers, changed := a.tracker.Transition(model.SourceMain)
	for _, m := range markers {
		a.sink.Emit(m)
	}

	next := timeline.Speaker{Role: model.RoleUser, Source: model.SourceMain}
	entry := &model.TimelineEntry{
		ID:          uuid.NewString(),
		Kind:        model.EntryUserMessage,
		Source:      model.SourceMain,
		Consecutive: timeline.IsConsecutive(a.prev, next, changed),
		Timestamp:   time.Now(),
		Text:        text,
	}
	a.sink.Emit(entry)
	a.prev = &next
}

// Accumulating reports whether a message is currently being assembled and
// for which source.
func (a *Assembler) Accumulating() (model.Source, bool) {
	if a.active == nil {
		return "", false
	}
	return a.active.source, true
}

// Finish deterministically finalizes any in-flight state and closes any open
// subagent context. Used at stream end and view teardown.
func (a *Assembler) Finish() {
	if a.active != nil {
		a.Finalize(a.active.source, "", nil)
	}
	for _, m := range a.tracker.Finish() {
		a.sink.Emit(m)
	}
}

// Reset discards all assembler state without emitting anything.
func (a *Assembler) Reset() {
	a.active = nil
	a.prev = nil
	a.tracker.Reset()
}

// ensure returns the in-flight state for source, creating it if the source
// is not currently being assembled. A source switch force-finalizes the
// previous message, then context markers are emitted before the new entry.
func (a *Assembler) ensure(source model.Source) *inflight {
	if a.active != nil && a.active.source == source {
		return a.active
	}
	if a.active != nil {
		a.Finalize(a.active.source, "", nil)
	}

	markers, changed := a.tracker.Transition(source)
	for _, m := range markers {
		a.sink.Emit(m)
	}

	next := timeline.Speaker{Role: model.RoleAssistant, Source: source}
	entry := &model.TimelineEntry{
		ID:          uuid.NewString(),
		Kind:        model.EntryAssistantMessage,
		Source:      source,
		Consecutive: timeline.IsConsecutive(a.prev, next, changed),
		Timestamp:   time.Now(),
		Streaming:   true,
	}

	st := &inflight{
		entry:     entry,
		source:    source,
		tools:     make(map[string]*model.ToolInvocation),
		startedAt: time.Now(),
	}
	a.active = st
	a.prev = &next
	a.sink.Emit(entry)
	return st
}

// emitOrphanResult renders a best-effort entry for a result that cannot be
// reconciled, preserving continuity of the conversation view.
func (a *Assembler) emitOrphanResult(source model.Source, toolID, result string, isError bool) {
	if source == "" {
		source = model.SourceMain
	}
	markers, changed := a.tracker.Transition(source)
	for _, m := range markers {
		a.sink.Emit(m)
	}

	status := model.ToolComplete
	if isError {
		status = model.ToolError
	}
	next := timeline.Speaker{Role: model.RoleAssistant, Source: source}
	entry := &model.TimelineEntry{
		ID:          uuid.NewString(),
		Kind:        model.EntryAssistantMessage,
		Source:      source,
		Consecutive: timeline.IsConsecutive(a.prev, next, changed),
		Timestamp:   time.Now(),
		Tools: []*model.ToolInvocation{{
			ID:     toolID,
			Status: status,
			Result: result,
			IsErr:  isError,
		}},
	}
	a.sink.Emit(entry)
	a.prev = &next
}
