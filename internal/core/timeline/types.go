package timeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

// Speaker identifies a turn for consecutive-grouping purposes.
type Speaker struct {
	Role   model.Role
	Source model.Source
}

// NewContextEntry builds a subagent context marker entry.
func NewContextEntry(kind model.EntryKind, src model.Source) *model.TimelineEntry {
	return &model.TimelineEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    src,
		Timestamp: time.Now(),
	}
}

// NewMessageEntry builds a timeline entry from a complete message. Tool calls
// are copied so the entry owns its invocation instances.
func NewMessageEntry(msg model.Message, consecutive bool) *model.TimelineEntry {
	kind := model.EntryAssistantMessage
	if msg.Role == model.RoleUser {
		kind = model.EntryUserMessage
	}

	tools := make([]*model.ToolInvocation, 0, len(msg.ToolCalls))
	for i := range msg.ToolCalls {
		inv := msg.ToolCalls[i]
		if inv.Status == "" {
			inv.Status = model.ToolComplete
		}
		tools = append(tools, &inv)
	}

	return &model.TimelineEntry{
		ID:          uuid.NewString(),
		Kind:        kind,
		Source:      msg.Source,
		Consecutive: consecutive,
		Timestamp:   msg.Timestamp,
		Text:        msg.Text,
		Thinking:    msg.Thinking,
		Tools:       tools,
	}
}
