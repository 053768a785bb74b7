package stream

import (
	"sync"
	"time"
)

// ActivityKind is the coarse busy state of the conversation.
type ActivityKind string

const (
	ActivityIdle          ActivityKind = "idle"
	ActivityThinking      ActivityKind = "thinking"
	ActivityToolExecuting ActivityKind = "tool_executing"
)

// Activity is the reported busy state. ToolName is set only while executing;
// it names the foregrounded (first pending) tool.
type Activity struct {
	Kind     ActivityKind
	ToolName string
}

// DefaultQuietInterval is how long thinking persists with no activity before
// the machine idles.
const DefaultQuietInterval = 400 * time.Millisecond

// ActivityMachine tracks idle/thinking/tool-executing status from the delta
// stream, independent of rendering. Idling is only reachable through
// thinking: tool_executing never times out while any invocation for the
// current message is unresolved.
//
// The quiet-interval timeout is an explicit cancellable timer owned by the
// machine; any activity event cancels and restarts it, and a user message
// fires it immediately. The timer callback is the single asynchronous input
// and takes the same lock as the event path.
type ActivityMachine struct {
	mu      sync.Mutex
	current Activity
	pending map[string]string
	order   []string
	quiet   time.Duration
	timer   *time.Timer
	notify  func(Activity)
}

// NewActivityMachine creates a machine in the idle state. notify is invoked,
// outside no other lock than the machine's own, whenever the reported state
// changes; it may be nil.
func NewActivityMachine(quiet time.Duration, notify func(Activity)) *ActivityMachine {
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	return &ActivityMachine{
		current: Activity{Kind: ActivityIdle},
		pending: make(map[string]string),
		quiet:   quiet,
		notify:  notify,
	}
}

// Current returns the reported state.
func (a *ActivityMachine) Current() Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// AssistantDelta records a non-tool assistant delta: idle moves to thinking
// and the quiet timer restarts.
func (a *ActivityMachine) AssistantDelta() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		a.set(Activity{Kind: ActivityThinking})
	}
	a.restartTimerLocked()
}

// ToolStarted adds an invocation to the pending set and reports
// tool_executing with the foreground tool's name.
func (a *ActivityMachine) ToolStarted(id, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[id]; !ok {
		a.order = append(a.order, id)
	}
	a.pending[id] = name
	a.stopTimerLocked()
	a.set(Activity{Kind: ActivityToolExecuting, ToolName: a.foregroundLocked()})
}

// ToolResolved removes an invocation from the pending set. When the set
// drains the machine returns to thinking and the quiet timer restarts.
func (a *ActivityMachine) ToolResolved(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[id]; !ok {
		return
	}
	delete(a.pending, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if len(a.pending) > 0 {
		a.set(Activity{Kind: ActivityToolExecuting, ToolName: a.foregroundLocked()})
		return
	}
	a.set(Activity{Kind: ActivityThinking})
	a.restartTimerLocked()
}

// MessageComplete restarts the quiet countdown for a finished message whose
// tools have all resolved; unresolved tools keep the machine executing.
func (a *ActivityMachine) MessageComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) > 0 {
		return
	}
	a.set(Activity{Kind: ActivityThinking})
	a.restartTimerLocked()
}

// UserMessage is a terminal event: the machine idles immediately and the
// pending set is discarded.
func (a *ActivityMachine) UserMessage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	a.pending = make(map[string]string)
	a.order = nil
	a.set(Activity{Kind: ActivityIdle})
}

// Reset returns the machine to its initial state without notifying.
func (a *ActivityMachine) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	a.pending = make(map[string]string)
	a.order = nil
	a.current = Activity{Kind: ActivityIdle}
}

func (a *ActivityMachine) foregroundLocked() string {
	if len(a.order) == 0 {
		return ""
	}
	return a.pending[a.order[0]]
}

func (a *ActivityMachine) set(next Activity) {
	if a.current == next {
		return
	}
	a.current = next
	if a.notify != nil {
		a.notify(next)
	}
}

func (a *ActivityMachine) restartTimerLocked() {
	a.stopTimerLocked()
	a.timer = time.AfterFunc(a.quiet, a.quietElapsed)
}

func (a *ActivityMachine) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *ActivityMachine) quietElapsed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current.Kind == ActivityThinking && len(a.pending) == 0 {
		a.set(Activity{Kind: ActivityIdle})
	}
}
