package model

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// TranscriptLine is one JSONL record of a conversation transcript.
type TranscriptLine struct {
	Type        string     `json:"type"`
	Timestamp   string     `json:"timestamp"`
	SessionID   string     `json:"sessionId"`
	AgentID     string     `json:"agentId,omitempty"`
	UUID        string     `json:"uuid"`
	IsMeta      bool       `json:"isMeta,omitempty"`
	IsSidechain bool       `json:"isSidechain,omitempty"`
	Message     RawMessage `json:"message"`
}

// RawMessage is the message body of a transcript line.
type RawMessage struct {
	Role    string          `json:"role"`
	Content FlexibleContent `json:"content"`
}

// FlexibleContent accepts both the block-array form and the bare-string form
// that simple user messages are written in.
type FlexibleContent []ContentBlock

func (fc *FlexibleContent) UnmarshalJSON(data []byte) error {
	var blocks []ContentBlock
	if err := sonic.Unmarshal(data, &blocks); err == nil {
		*fc = blocks
		return nil
	}

	var str string
	if err := sonic.Unmarshal(data, &str); err == nil {
		*fc = []ContentBlock{{Type: "text", Text: str}}
		return nil
	}

	return fmt.Errorf("content must be a string or an array of content blocks")
}

// ContentBlock is a single content block within a transcript message:
// text, thinking, tool_use or tool_result.
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Thinking  string         `json:"thinking,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Content   any            `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}
