package stream

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

// DeltaType enumerates the closed set of live event kinds. Anything outside
// this set is malformed by definition.
type DeltaType string

const (
	DeltaText            DeltaType = "text-delta"
	DeltaToolStart       DeltaType = "tool-start"
	DeltaToolResult      DeltaType = "tool-result"
	DeltaThinking        DeltaType = "thinking-delta"
	DeltaThinkingEnd     DeltaType = "thinking-end"
	DeltaMessageComplete DeltaType = "message-complete"
	DeltaUserMessage     DeltaType = "user-message"
)

// Delta is one incremental update for an in-flight message. Which fields are
// meaningful depends on Type.
type Delta struct {
	Type      DeltaType    `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	Source    model.Source `json:"source,omitempty"`

	// text-delta, thinking-delta, user-message
	Text string `json:"text,omitempty"`

	// tool-start
	Tool *model.ToolInvocation `json:"tool,omitempty"`

	// tool-result
	ToolID  string `json:"toolId,omitempty"`
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"isError,omitempty"`

	// message-complete
	FinalText  string                 `json:"finalText,omitempty"`
	FinalTools []model.ToolInvocation `json:"finalToolInvocations,omitempty"`
}

// DecodeDelta parses and validates a raw delta payload. Callers drop the
// delta with a logged warning on error; decode failures never mutate state.
func DecodeDelta(data []byte) (Delta, error) {
	var d Delta
	if err := sonic.Unmarshal(data, &d); err != nil {
		return Delta{}, fmt.Errorf("unparsable delta payload: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Delta{}, err
	}
	return d, nil
}

// Validate checks the delta against its type's required fields.
func (d Delta) Validate() error {
	switch d.Type {
	case DeltaText:
		if d.Source == "" {
			return fmt.Errorf("text-delta missing source")
		}
	case DeltaToolStart:
		if d.Source == "" {
			return fmt.Errorf("tool-start missing source")
		}
		if d.Tool == nil || d.Tool.ID == "" {
			return fmt.Errorf("tool-start missing tool invocation id")
		}
	case DeltaToolResult:
		if d.ToolID == "" {
			return fmt.Errorf("tool-result missing tool id")
		}
	case DeltaThinking, DeltaThinkingEnd, DeltaUserMessage:
		// No required fields beyond the type.
	case DeltaMessageComplete:
		if d.Source == "" {
			return fmt.Errorf("message-complete missing source")
		}
	default:
		return fmt.Errorf("unknown delta type %q", d.Type)
	}
	return nil
}
