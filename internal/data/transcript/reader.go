package transcript

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

const (
	agentFilePrefix = "agent-"
	jsonlExt        = ".jsonl"
	subagentsDir    = "subagents"

	// Tool results beyond this many runes are truncated before display.
	maxToolResultRunes = 2000
)

// Conversation is a fully-formed historical transcript: the main stream,
// per-subagent streams and the display metadata extracted for them.
type Conversation struct {
	SessionID     string
	Main          []model.Message
	Subagents     map[string][]model.Message
	AgentMetadata map[model.Source]model.AgentInfo
}

// SessionInfo describes one discoverable session transcript.
type SessionInfo struct {
	SessionID string
	Path      string
	Modified  time.Time
	Size      int64
}

// Reader loads conversation transcripts from a projects directory. The main
// transcript lives at <session>.jsonl; subagent transcripts live under
// <session>/subagents/agent-<id>.jsonl.
type Reader struct {
	projectsDir string
}

// NewReader creates a reader rooted at projectsDir.
func NewReader(projectsDir string) *Reader {
	return &Reader{projectsDir: projectsDir}
}

// EscapeProjectPath converts a project path to its escaped directory name,
// e.g. /home/user/proj becomes -home-user-proj.
func EscapeProjectPath(projectPath string) string {
	trimmed := strings.TrimPrefix(projectPath, "/")
	return "-" + strings.ReplaceAll(trimmed, "/", "-")
}

func (r *Reader) transcriptsDir(projectPath string) (string, error) {
	dir := filepath.Join(r.projectsDir, EscapeProjectPath(projectPath))
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("no transcripts for project %s: %w", projectPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("transcripts path %s is not a directory", dir)
	}
	return dir, nil
}

// ListSessions returns the project's main session transcripts, newest first.
func (r *Reader) ListSessions(projectPath string) ([]SessionInfo, error) {
	dir, err := r.transcriptsDir(projectPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var sessions []SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jsonlExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionInfo{
			SessionID: strings.TrimSuffix(entry.Name(), jsonlExt),
			Path:      filepath.Join(dir, entry.Name()),
			Modified:  info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Modified.After(sessions[j].Modified)
	})
	return sessions, nil
}

// ReadConversation loads the complete conversation for a session, including
// subagent transcripts and the agent metadata derivable from the main stream.
func (r *Reader) ReadConversation(projectPath, sessionID string) (*Conversation, error) {
	dir, err := r.transcriptsDir(projectPath)
	if err != nil {
		return nil, err
	}

	mainPath := filepath.Join(dir, sessionID+jsonlExt)
	main, err := r.ReadTranscript(mainPath, model.SourceMain)
	if err != nil {
		return nil, fmt.Errorf("read main transcript: %w", err)
	}

	conv := &Conversation{
		SessionID: sessionID,
		Main:      main,
		Subagents: make(map[string][]model.Message),
	}

	subDir := filepath.Join(dir, sessionID, subagentsDir)
	var subagentIDs []string
	if entries, err := os.ReadDir(subDir); err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, agentFilePrefix) || !strings.HasSuffix(name, jsonlExt) {
				continue
			}
			agentID := strings.TrimSuffix(strings.TrimPrefix(name, agentFilePrefix), jsonlExt)
			msgs, err := r.ReadTranscript(filepath.Join(subDir, name), model.Source(agentID))
			if err != nil {
				util.LogWarnf("skipping subagent transcript %s: %v", name, err)
				continue
			}
			conv.Subagents[agentID] = msgs
			subagentIDs = append(subagentIDs, agentID)
		}
	}
	sort.Strings(subagentIDs)

	conv.AgentMetadata = ExtractAgentMetadata(main, subagentIDs)
	return conv, nil
}

// ReadTranscript parses one JSONL transcript file. Invalid lines are skipped;
// tool results found in follow-up turns are reconciled back onto the
// invocation that produced them.
func (r *Reader) ReadTranscript(path string, source model.Source) ([]model.Message, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var messages []model.Message
	pendingTools := make(map[string]*model.ToolInvocation)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line model.TranscriptLine
		if err := sonic.Unmarshal(raw, &line); err != nil {
			util.LogDebugf("skipping invalid JSON at %s:%d: %v", path, lineNo, err)
			continue
		}

		msg, ok := parseLine(&line, source, pendingTools)
		if !ok {
			continue
		}
		messages = append(messages, *msg)
		for i := range messages[len(messages)-1].ToolCalls {
			inv := &messages[len(messages)-1].ToolCalls[i]
			pendingTools[inv.ID] = inv
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// parseLine converts one transcript line into a Message. Tool results embedded
// in later turns update the pending invocation map instead of materializing a
// message of their own. Empty messages are dropped.
func parseLine(line *model.TranscriptLine, source model.Source, pendingTools map[string]*model.ToolInvocation) (*model.Message, bool) {
	if line.Type != "user" && line.Type != "assistant" {
		return nil, false
	}
	if line.IsMeta {
		return nil, false
	}

	ts, err := time.Parse(time.RFC3339, line.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	var textParts []string
	var thinkingParts []string
	var toolCalls []model.ToolInvocation

	for _, block := range line.Message.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "thinking":
			if block.Thinking != "" {
				thinkingParts = append(thinkingParts, block.Thinking)
			}
		case "tool_use":
			toolCalls = append(toolCalls, model.ToolInvocation{
				ID:     block.ID,
				Name:   block.Name,
				Input:  block.Input,
				Status: model.ToolRunning,
			})
		case "tool_result":
			if inv, ok := pendingTools[block.ToolUseID]; ok {
				inv.Result = truncateResult(blockContentText(block.Content))
				inv.IsErr = block.IsError
				inv.Status = model.ToolComplete
				if block.IsError {
					inv.Status = model.ToolError
				}
			}
		}
	}

	msg := model.Message{
		Role:      model.Role(line.Message.Role),
		Text:      strings.Join(textParts, "\n"),
		Thinking:  strings.Join(thinkingParts, "\n"),
		ToolCalls: toolCalls,
		Timestamp: ts,
		Source:    source,
	}
	if msg.Role == "" {
		msg.Role = model.Role(line.Type)
	}
	if msg.IsEmpty() {
		return nil, false
	}
	return &msg, true
}

func blockContentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func truncateResult(s string) string {
	runes := []rune(s)
	if len(runes) <= maxToolResultRunes {
		return s
	}
	return string(runes[:maxToolResultRunes]) + "… [truncated]"
}

// MergeChronological interleaves the main and subagent streams into a single
// timestamp-ordered event sequence. The sort is stable so same-timestamp
// records keep their per-stream order.
func MergeChronological(conv *Conversation) []model.ChronologicalEvent {
	total := len(conv.Main)
	for _, msgs := range conv.Subagents {
		total += len(msgs)
	}

	events := make([]model.ChronologicalEvent, 0, total)
	for _, msg := range conv.Main {
		events = append(events, model.ChronologicalEvent{
			Source:    model.SourceMain,
			Timestamp: msg.Timestamp,
			Message:   msg,
		})
	}

	agentIDs := make([]string, 0, len(conv.Subagents))
	for id := range conv.Subagents {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)
	for _, id := range agentIDs {
		for _, msg := range conv.Subagents[id] {
			events = append(events, model.ChronologicalEvent{
				Source:    model.Source(id),
				Timestamp: msg.Timestamp,
				Message:   msg,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// ExtractAgentMetadata maps subagent ids to display metadata by pairing Task
// tool calls from the main stream with subagent transcripts in spawn order.
// The typed identifier "domain:name" carries the domain tag.
func ExtractAgentMetadata(main []model.Message, subagentIDs []string) map[model.Source]model.AgentInfo {
	type taskCall struct {
		typed       string
		description string
	}

	var tasks []taskCall
	for _, msg := range main {
		if msg.Role != model.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.Name != "Task" {
				continue
			}
			typed, _ := call.Input["subagent_type"].(string)
			desc, _ := call.Input["description"].(string)
			tasks = append(tasks, taskCall{typed: typed, description: desc})
		}
	}

	metadata := make(map[model.Source]model.AgentInfo)
	for i, agentID := range subagentIDs {
		if i >= len(tasks) {
			break
		}
		domain, name := agent.SplitTypedName(tasks[i].typed)
		if name == "" {
			continue
		}
		metadata[model.Source(agentID)] = model.AgentInfo{
			ID:          model.Source(agentID),
			DisplayName: name,
			DomainTag:   domain,
			Description: tasks[i].description,
			Initials:    agent.Initials(name),
		}
	}
	return metadata
}
