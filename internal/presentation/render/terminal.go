package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/model"
	"github.com/penwyp/go-agent-timeline/internal/core/stream"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

const defaultWidth = 100

// TerminalSink renders timeline entries as a scrolling log. Streaming text is
// appended in place; the activity state is a transient status line under the
// log that is cleared before anything permanent is printed.
//
// The sink only displays: it never mutates entries, and repeated UpdateInPlace
// calls with the same payload print nothing new.
type TerminalSink struct {
	mu        sync.Mutex
	out       io.Writer
	directory *agent.Directory
	width     int

	rendered    map[string]*renderedEntry
	statusShown bool
}

type renderedEntry struct {
	entry      *model.TimelineEntry
	printedLen int
	toolStatus map[string]model.ToolStatus
	needsNL    bool
}

// NewTerminalSink creates a sink writing to out. Width is detected from the
// terminal when out is stdout, with a fixed fallback for pipes.
func NewTerminalSink(out io.Writer, directory *agent.Directory) *TerminalSink {
	width := defaultWidth
	if out == os.Stdout {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
			width = w
		}
	}
	return &TerminalSink{
		out:       out,
		directory: directory,
		width:     width,
		rendered:  make(map[string]*renderedEntry),
	}
}

// Emit renders a new entry.
func (t *TerminalSink) Emit(entry *model.TimelineEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()

	if entry.IsContextMarker() {
		t.printContextMarker(entry)
		return
	}

	re := &renderedEntry{
		entry:      entry,
		toolStatus: make(map[string]model.ToolStatus),
	}
	t.rendered[entry.ID] = re

	if !entry.Consecutive {
		t.printHeader(entry)
	}

	if entry.Text != "" {
		fmt.Fprint(t.out, entry.Text)
		re.printedLen = len(entry.Text)
		re.needsNL = true
	}
	for _, inv := range entry.Tools {
		t.printTool(re, inv)
	}
	if !entry.Streaming {
		t.finishLineLocked(re)
	}
}

// UpdateInPlace appends the new portion of a streamed entry. Unknown entry
// ids are ignored.
func (t *TerminalSink) UpdateInPlace(entryID string, patch model.EntryPatch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	re, ok := t.rendered[entryID]
	if !ok {
		return
	}
	t.clearStatusLocked()

	if patch.Text != nil {
		full := *patch.Text
		if len(full) > re.printedLen {
			fmt.Fprint(t.out, full[re.printedLen:])
			re.printedLen = len(full)
			re.needsNL = true
		}
	}
	for _, inv := range patch.Tools {
		t.printTool(re, inv)
	}
	if patch.Streaming != nil && !*patch.Streaming {
		t.finishLineLocked(re)
		delete(t.rendered, entryID)
	}
}

// SetActivity rewrites the transient status line.
func (t *TerminalSink) SetActivity(state stream.Activity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()

	var label string
	switch state.Kind {
	case stream.ActivityThinking:
		label = "· thinking"
	case stream.ActivityToolExecuting:
		label = "· running " + state.ToolName
	default:
		return
	}
	fmt.Fprint(t.out, util.Dim(util.Truncate(label, t.width)))
	t.statusShown = true
}

func (t *TerminalSink) clearStatusLocked() {
	if t.statusShown {
		fmt.Fprint(t.out, util.ClearLine)
		t.statusShown = false
	}
}

func (t *TerminalSink) finishLineLocked(re *renderedEntry) {
	if re.needsNL {
		fmt.Fprintln(t.out)
		re.needsNL = false
	}
}

func (t *TerminalSink) printContextMarker(entry *model.TimelineEntry) {
	info := t.directory.Resolve(entry.Source)
	verb := "started"
	if entry.Kind == model.EntryContextEnd {
		verb = "finished"
	}
	name := info.DisplayName
	if info.DomainTag != "" {
		name = info.DomainTag + ":" + name
	}
	line := fmt.Sprintf("── subagent %s %s ──", name, verb)
	fmt.Fprintln(t.out, util.Dim(util.Truncate(line, t.width)))
}

func (t *TerminalSink) printHeader(entry *model.TimelineEntry) {
	clock := util.Dim(util.FormatClock(entry.Timestamp))
	var label string
	if entry.Role() == model.RoleUser {
		label = util.Bold("You")
	} else {
		info := t.directory.Resolve(entry.Source)
		label = util.Colorize(info.ColorToken, util.Bold(fmt.Sprintf("[%s] %s", info.Initials, info.DisplayName)))
	}
	fmt.Fprintf(t.out, "\n%s %s\n", clock, label)
}

// printTool renders an invocation line once per observed status. A second
// call with the same status is a no-op, which keeps replays idempotent.
func (t *TerminalSink) printTool(re *renderedEntry, inv *model.ToolInvocation) {
	if prev, ok := re.toolStatus[inv.ID]; ok && prev == inv.Status {
		return
	}
	re.toolStatus[inv.ID] = inv.Status
	t.finishLineLocked(re)

	var line string
	switch inv.Status {
	case model.ToolRunning:
		line = fmt.Sprintf("  ⚒ %s %s", inv.Name, util.Dim(toolInputSummary(inv)))
	case model.ToolError:
		line = fmt.Sprintf("  ✗ %s %s", inv.Name, util.Dim(util.FirstLine(inv.Result)))
	default:
		summary := util.FirstLine(inv.Result)
		if summary == "" {
			summary = toolInputSummary(inv)
		}
		line = fmt.Sprintf("  ✓ %s %s", inv.Name, util.Dim(summary))
	}
	fmt.Fprintln(t.out, util.Truncate(line, t.width))
}

// toolInputSummary picks the most descriptive input value for a one-line
// summary. Well-known keys win over arbitrary ones.
func toolInputSummary(inv *model.ToolInvocation) string {
	for _, key := range []string{"description", "command", "pattern", "file_path", "path", "query", "prompt"} {
		if v, ok := inv.Input[key].(string); ok && v != "" {
			return util.FirstLine(v)
		}
	}
	var parts []string
	for k, v := range inv.Input {
		if s, ok := v.(string); ok && s != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, util.FirstLine(s)))
			if len(parts) == 2 {
				break
			}
		}
	}
	return strings.Join(parts, " ")
}
