package model

import (
	"time"
)

// Source identifies who is speaking: the primary agent ("main") or an
// opaque subagent identifier. Two sources are equal iff their identifiers
// are equal.
type Source string

// SourceMain is the primary agent's source identifier.
const SourceMain Source = "main"

// IsMain reports whether the source is the primary agent.
func (s Source) IsMain() bool {
	return s == SourceMain
}

// Role is the speaker role of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AgentInfo is display metadata derived from a Source. It is computed, never
// stored on timeline entries.
type AgentInfo struct {
	ID          Source
	DisplayName string
	ColorToken  string
	Initials    string
	DomainTag   string
	Description string
}

// ToolStatus is the lifecycle status of a tool invocation.
type ToolStatus string

const (
	ToolRunning  ToolStatus = "running"
	ToolComplete ToolStatus = "complete"
	ToolError    ToolStatus = "error"
)

// ToolInvocation is a single tool call. ID is the reconciliation key: a later
// invocation with the same ID updates the earlier one in place rather than
// duplicating it.
type ToolInvocation struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Status ToolStatus     `json:"status"`
	Result string         `json:"result,omitempty"`
	IsErr  bool           `json:"isError,omitempty"`

	// Interactive holds an externally-owned sub-element (for example a
	// not-yet-submitted multi-choice prompt). The engine carries the value
	// across reconciliation and finalize but never rebuilds or inspects it.
	Interactive any `json:"-"`
}

// MergeFrom folds a later revision of the same invocation into the receiver.
// The merge is additive: fields already known are never erased by a partial
// later revision. Interactive state on the receiver is always kept.
func (t *ToolInvocation) MergeFrom(other *ToolInvocation) {
	if other == nil || other.ID != t.ID {
		return
	}
	if other.Name != "" {
		t.Name = other.Name
	}
	if len(other.Input) > 0 {
		if t.Input == nil {
			t.Input = make(map[string]any, len(other.Input))
		}
		for k, v := range other.Input {
			t.Input[k] = v
		}
	}
	if other.Status != "" {
		t.Status = other.Status
	}
	if other.Result != "" {
		t.Result = other.Result
	}
	if other.IsErr {
		t.IsErr = true
	}
}

// Message is one conversational turn as delivered by the fetch service.
type Message struct {
	Role      Role
	Text      string
	Thinking  string
	ToolCalls []ToolInvocation
	Timestamp time.Time
	Source    Source
}

// IsEmpty reports whether the message carries nothing renderable. Empty
// messages are suppressed, never materialized into timeline entries.
func (m Message) IsEmpty() bool {
	return m.Text == "" && len(m.ToolCalls) == 0
}

// EntryKind classifies a timeline entry.
type EntryKind string

const (
	EntryContextStart     EntryKind = "subagent-context-start"
	EntryContextEnd       EntryKind = "subagent-context-end"
	EntryUserMessage      EntryKind = "user-message"
	EntryAssistantMessage EntryKind = "assistant-message"
)

// TimelineEntry is the unit handed to the render sink. The merge and assembly
// engines exclusively own entry lifecycle; the sink only displays.
type TimelineEntry struct {
	ID          string
	Kind        EntryKind
	Source      Source
	Consecutive bool
	Timestamp   time.Time

	// Message payload fields; unused for context markers.
	Text      string
	Thinking  string
	Tools     []*ToolInvocation
	Streaming bool
}

// IsContextMarker reports whether the entry opens or closes a subagent context.
func (e *TimelineEntry) IsContextMarker() bool {
	return e.Kind == EntryContextStart || e.Kind == EntryContextEnd
}

// Role returns the speaker role for message entries.
func (e *TimelineEntry) Role() Role {
	if e.Kind == EntryUserMessage {
		return RoleUser
	}
	return RoleAssistant
}

// EntryPatch is a partial payload applied to an already-emitted entry via
// UpdateInPlace. Nil fields are left untouched.
type EntryPatch struct {
	Text      *string
	Thinking  *string
	Tools     []*ToolInvocation
	Streaming *bool
}

// ChronologicalEvent is one element of a pre-merged historical timeline. The
// fetch service interleaves main and subagent records by timestamp before
// delivery; the merge engine never re-sorts.
type ChronologicalEvent struct {
	Source    Source
	Timestamp time.Time
	Message   Message
}
