package session

import (
	"sync"
	"time"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/stream"
	"github.com/penwyp/go-agent-timeline/internal/core/timeline"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

// Config carries the tunables for a timeline session.
type Config struct {
	// QuietInterval is how long thinking persists with no activity before
	// the busy indicator idles.
	QuietInterval time.Duration
}

// TimelineSession owns all mutable engine state for one live timeline view:
// the context tracker, the streaming assembler and the activity machine. All
// mutation flows through HandleDelta under a single lock; only one session
// receives live deltas at a time.
type TimelineSession struct {
	mu        sync.Mutex
	id        string
	sink      stream.Sink
	directory *agent.Directory
	assembler *stream.Assembler
	activity  *stream.ActivityMachine
	merger    *timeline.MergeEngine

	closed           bool
	reportedTeardown bool
}

// New creates a session for the conversation identified by id, emitting
// through sink.
func New(id string, sink stream.Sink, directory *agent.Directory, cfg Config) *TimelineSession {
	s := &TimelineSession{
		id:        id,
		sink:      sink,
		directory: directory,
		assembler: stream.NewAssembler(sink),
		merger:    timeline.NewMergeEngine(),
	}
	s.activity = stream.NewActivityMachine(cfg.QuietInterval, sink.SetActivity)
	return s
}

// ID returns the session's conversation identifier.
func (s *TimelineSession) ID() string {
	return s.id
}

// LoadHistory renders a complete historical timeline through the sink and
// registers the accompanying agent metadata. The last historical speaker
// seeds consecutive grouping for the live stream.
func (s *TimelineSession) LoadHistory(events []model.ChronologicalEvent, metadata map[model.Source]model.AgentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(metadata) > 0 {
		s.directory.RegisterAll(metadata)
	}

	entries := s.merger.Merge(events)
	for _, e := range entries {
		s.sink.Emit(e)
	}

	if prev := lastSpeaker(entries); prev != nil {
		s.assembler.SeedSpeaker(prev)
	}
}

// LoadMessages is the fallback for fetch payloads that carry no pre-merged
// timeline: the messages render as a single main-only stream.
func (s *TimelineSession) LoadMessages(messages []model.Message, metadata map[model.Source]model.AgentInfo) {
	events := make([]model.ChronologicalEvent, 0, len(messages))
	for _, msg := range messages {
		msg.Source = model.SourceMain
		events = append(events, model.ChronologicalEvent{
			Source:    model.SourceMain,
			Timestamp: msg.Timestamp,
			Message:   msg,
		})
	}
	s.LoadHistory(events, metadata)
}

// HandleRaw decodes one wire payload and applies it. Malformed payloads are
// dropped with a warning; state before the bad delta remains valid.
func (s *TimelineSession) HandleRaw(data []byte) {
	d, err := stream.DecodeDelta(data)
	if err != nil {
		util.LogWarnf("dropping malformed delta: %v", err)
		return
	}
	s.HandleDelta(d)
}

// HandleDelta is the single event-handling entry point. Deltas tagged with a
// conversation identifier that no longer matches the active view are stale
// and silently discarded.
func (s *TimelineSession) HandleDelta(d stream.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		if !s.reportedTeardown {
			s.reportedTeardown = true
			util.LogError("delta received after session teardown; processing stopped until re-initialized")
		}
		return
	}
	if d.SessionID != "" && d.SessionID != s.id {
		util.LogDebugf("discarding stale delta for session %s", d.SessionID)
		return
	}

	switch d.Type {
	case stream.DeltaText:
		s.assembler.AppendText(d.Source, d.Text)
		s.activity.AssistantDelta()

	case stream.DeltaThinking:
		s.assembler.AppendThinking(d.Text)
		s.activity.AssistantDelta()

	case stream.DeltaThinkingEnd:
		// Thinking block closed; the quiet timer decides when to idle.

	case stream.DeltaToolStart:
		s.assembler.StartTool(d.Source, d.Tool)
		s.activity.ToolStarted(d.Tool.ID, d.Tool.Name)

	case stream.DeltaToolResult:
		s.assembler.ResolveTool(d.Source, d.ToolID, d.Result, d.IsError)
		s.activity.ToolResolved(d.ToolID)

	case stream.DeltaMessageComplete:
		s.assembler.Finalize(d.Source, d.FinalText, d.FinalTools)
		s.activity.MessageComplete()

	case stream.DeltaUserMessage:
		s.assembler.UserMessage(d.Text)
		s.activity.UserMessage()

	default:
		util.LogWarnf("dropping delta with unknown type %q", d.Type)
	}
}

// Activity returns the current busy state.
func (s *TimelineSession) Activity() stream.Activity {
	return s.activity.Current()
}

// Close deterministically finalizes any in-flight state, closes any open
// subagent context and resets activity. Deltas arriving afterwards are
// rejected until a new session is created.
func (s *TimelineSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.assembler.Finish()
	s.activity.Reset()
	s.sink.SetActivity(stream.Activity{Kind: stream.ActivityIdle})
	s.closed = true
}

// lastSpeaker finds the trailing message speaker of a rendered batch.
func lastSpeaker(entries []*model.TimelineEntry) *timeline.Speaker {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.IsContextMarker() {
			// A trailing context marker interrupts any run.
			return nil
		}
		return &timeline.Speaker{Role: e.Role(), Source: e.Source}
	}
	return nil
}
