package tail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/stream"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

const (
	agentFilePrefix = "agent-"
	jsonlExt        = ".jsonl"
)

// Follower tails a session's transcript files and converts appended records
// into streaming deltas. It watches both the main transcript and the
// subagents directory, picking up agent files as they appear.
type Follower struct {
	watcher   *fsnotify.Watcher
	sessionID string
	mainPath  string
	subDir    string
	offsets   map[string]int64
	deltas    chan stream.Delta
}

// NewFollower prepares a follower for one session under the given transcripts
// directory. Existing file content is skipped; only appends after Start are
// reported.
func NewFollower(transcriptsDir, sessionID string) (*Follower, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	f := &Follower{
		watcher:   watcher,
		sessionID: sessionID,
		mainPath:  filepath.Join(transcriptsDir, sessionID+jsonlExt),
		subDir:    filepath.Join(transcriptsDir, sessionID, "subagents"),
		offsets:   make(map[string]int64),
		deltas:    make(chan stream.Delta, 256),
	}

	if err := watcher.Add(transcriptsDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", transcriptsDir, err)
	}
	if _, err := os.Stat(f.subDir); err == nil {
		if err := watcher.Add(f.subDir); err != nil {
			util.LogWarnf("cannot watch subagents dir %s: %v", f.subDir, err)
		}
	}

	f.seedOffsets()
	return f, nil
}

// Deltas returns the channel streaming deltas are delivered on. It is closed
// when Run returns.
func (f *Follower) Deltas() <-chan stream.Delta {
	return f.deltas
}

// Run processes watcher events until the context is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	defer close(f.deltas)
	defer f.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(ctx, event)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			util.LogWarnf("watcher error: %v", err)
		}
	}
}

// seedOffsets records current file sizes so Run only reports appends made
// after the follower was created. History is loaded separately.
func (f *Follower) seedOffsets() {
	if info, err := os.Stat(f.mainPath); err == nil {
		f.offsets[f.mainPath] = info.Size()
	}
	entries, err := os.ReadDir(f.subDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(f.subDir, entry.Name())
		if info, err := entry.Info(); err == nil {
			f.offsets[path] = info.Size()
		}
	}
}

func (f *Follower) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// The subagents directory may not exist until the first agent spawns.
	if event.Has(fsnotify.Create) && event.Name == f.subDir {
		if err := f.watcher.Add(f.subDir); err != nil {
			util.LogWarnf("cannot watch subagents dir %s: %v", f.subDir, err)
		}
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			sessionDir := filepath.Dir(f.subDir)
			if event.Name == sessionDir {
				// Session dir appeared; the subagents dir will follow.
				return
			}
		}
	}

	source, ok := f.sourceFor(event.Name)
	if !ok {
		return
	}
	f.drain(ctx, event.Name, source)
}

// sourceFor maps a transcript path to its stream source. Files outside this
// session are ignored.
func (f *Follower) sourceFor(path string) (model.Source, bool) {
	if path == f.mainPath {
		return model.SourceMain, true
	}
	if filepath.Dir(path) != f.subDir {
		return "", false
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, agentFilePrefix) || !strings.HasSuffix(name, jsonlExt) {
		return "", false
	}
	return model.Source(strings.TrimSuffix(strings.TrimPrefix(name, agentFilePrefix), jsonlExt)), true
}

// drain reads all lines appended to path since the last drain and pushes the
// resulting deltas.
func (f *Follower) drain(ctx context.Context, path string, source model.Source) {
	file, err := os.Open(path)
	if err != nil {
		util.LogWarnf("cannot open %s: %v", path, err)
		return
	}
	defer file.Close()

	offset := f.offsets[path]
	if info, err := file.Stat(); err == nil && info.Size() < offset {
		// Truncated or rotated; start over.
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		util.LogWarnf("cannot seek %s: %v", path, err)
		return
	}

	reader := bufio.NewReader(file)
	for {
		raw, err := reader.ReadBytes('\n')
		if err != nil {
			// Partial trailing line; re-read it on the next write event.
			break
		}
		offset += int64(len(raw))

		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		var record model.TranscriptLine
		if err := sonic.Unmarshal([]byte(line), &record); err != nil {
			util.LogDebugf("skipping invalid JSON in %s: %v", path, err)
			continue
		}
		for _, delta := range ToDeltas(&record, source, f.sessionID) {
			select {
			case f.deltas <- delta:
			case <-ctx.Done():
				return
			}
		}
	}
	f.offsets[path] = offset
}

// ToDeltas converts one transcript record into the streaming deltas that an
// incremental producer would have emitted for it. Transcript records arrive
// whole, so each assistant record expands into its content deltas followed by
// a message-complete.
func ToDeltas(line *model.TranscriptLine, source model.Source, sessionID string) []stream.Delta {
	if line.IsMeta {
		return nil
	}

	switch line.Type {
	case "assistant":
		return assistantDeltas(line, source, sessionID)
	case "user":
		return userDeltas(line, source, sessionID)
	default:
		return nil
	}
}

func assistantDeltas(line *model.TranscriptLine, source model.Source, sessionID string) []stream.Delta {
	var deltas []stream.Delta
	var finalText []string
	var finalTools []model.ToolInvocation

	for _, block := range line.Message.Content {
		switch block.Type {
		case "thinking":
			if block.Thinking == "" {
				continue
			}
			deltas = append(deltas,
				stream.Delta{Type: stream.DeltaThinking, SessionID: sessionID, Source: source, Text: block.Thinking},
				stream.Delta{Type: stream.DeltaThinkingEnd, SessionID: sessionID, Source: source},
			)
		case "text":
			if block.Text == "" {
				continue
			}
			finalText = append(finalText, block.Text)
			deltas = append(deltas, stream.Delta{
				Type:      stream.DeltaText,
				SessionID: sessionID,
				Source:    source,
				Text:      block.Text,
			})
		case "tool_use":
			inv := model.ToolInvocation{
				ID:     block.ID,
				Name:   block.Name,
				Input:  block.Input,
				Status: model.ToolRunning,
			}
			finalTools = append(finalTools, inv)
			deltas = append(deltas, stream.Delta{
				Type:      stream.DeltaToolStart,
				SessionID: sessionID,
				Source:    source,
				Tool:      &inv,
			})
		}
	}

	if len(deltas) == 0 {
		return nil
	}
	deltas = append(deltas, stream.Delta{
		Type:       stream.DeltaMessageComplete,
		SessionID:  sessionID,
		Source:     source,
		FinalText:  strings.Join(finalText, "\n"),
		FinalTools: finalTools,
	})
	return deltas
}

func userDeltas(line *model.TranscriptLine, source model.Source, sessionID string) []stream.Delta {
	var deltas []stream.Delta
	var textParts []string

	for _, block := range line.Message.Content {
		switch block.Type {
		case "tool_result":
			deltas = append(deltas, stream.Delta{
				Type:      stream.DeltaToolResult,
				SessionID: sessionID,
				Source:    source,
				ToolID:    block.ToolUseID,
				Result:    resultText(block.Content),
				IsError:   block.IsError,
			})
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		}
	}

	// Only real user turns on the main stream become user-message deltas;
	// subagent user records are tool plumbing.
	if len(textParts) > 0 && source.IsMain() {
		deltas = append(deltas, stream.Delta{
			Type:      stream.DeltaUserMessage,
			SessionID: sessionID,
			Source:    source,
			Text:      strings.Join(textParts, "\n"),
		})
	}
	return deltas
}

func resultText(content any) string {
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
