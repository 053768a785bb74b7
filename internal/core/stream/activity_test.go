package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type activityLog struct {
	mu     sync.Mutex
	states []Activity
}

func (l *activityLog) record(a Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, a)
}

func (l *activityLog) all() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Activity(nil), l.states...)
}

func TestAssistantDeltaMovesIdleToThinking(t *testing.T) {
	m := NewActivityMachine(time.Hour, nil)
	m.AssistantDelta()
	assert.Equal(t, Activity{Kind: ActivityThinking}, m.Current())
}

func TestToolLifecycle(t *testing.T) {
	log := &activityLog{}
	m := NewActivityMachine(time.Hour, log.record)

	m.AssistantDelta()
	m.ToolStarted("t1", "Search")
	assert.Equal(t, Activity{Kind: ActivityToolExecuting, ToolName: "Search"}, m.Current())

	m.ToolStarted("t2", "Edit")
	assert.Equal(t, "Search", m.Current().ToolName, "the first pending tool stays foregrounded")

	m.ToolResolved("t1")
	assert.Equal(t, Activity{Kind: ActivityToolExecuting, ToolName: "Edit"}, m.Current())

	m.ToolResolved("t2")
	assert.Equal(t, Activity{Kind: ActivityThinking}, m.Current(),
		"draining the pending set returns to thinking, not idle")
}

func TestThinkingDeltaDuringToolKeepsExecuting(t *testing.T) {
	m := NewActivityMachine(time.Hour, nil)
	m.ToolStarted("t1", "Search")
	m.AssistantDelta()
	assert.Equal(t, ActivityToolExecuting, m.Current().Kind)
}

func TestMessageCompleteWithPendingToolsStaysExecuting(t *testing.T) {
	m := NewActivityMachine(time.Hour, nil)
	m.ToolStarted("t1", "Search")
	m.MessageComplete()
	assert.Equal(t, ActivityToolExecuting, m.Current().Kind,
		"executing never times out while an invocation is unresolved")
}

func TestQuietIntervalIdles(t *testing.T) {
	m := NewActivityMachine(20*time.Millisecond, nil)
	m.AssistantDelta()
	require.Equal(t, ActivityThinking, m.Current().Kind)

	assert.Eventually(t, func() bool {
		return m.Current().Kind == ActivityIdle
	}, time.Second, 5*time.Millisecond)
}

func TestActivityExtendsQuietInterval(t *testing.T) {
	m := NewActivityMachine(60*time.Millisecond, nil)
	m.AssistantDelta()
	time.Sleep(30 * time.Millisecond)
	m.AssistantDelta()
	time.Sleep(45 * time.Millisecond)
	assert.Equal(t, ActivityThinking, m.Current().Kind,
		"each delta restarts the countdown")
}

func TestUserMessageIdlesImmediately(t *testing.T) {
	m := NewActivityMachine(time.Hour, nil)
	m.ToolStarted("t1", "Search")
	m.UserMessage()
	assert.Equal(t, Activity{Kind: ActivityIdle}, m.Current())

	m.MessageComplete()
	m.ToolResolved("t1")
	assert.NotEqual(t, ActivityToolExecuting, m.Current().Kind,
		"the pending set was discarded with the user message")
}

func TestNotifyOnlyOnChange(t *testing.T) {
	log := &activityLog{}
	m := NewActivityMachine(time.Hour, log.record)

	m.AssistantDelta()
	m.AssistantDelta()
	m.AssistantDelta()

	states := log.all()
	require.Len(t, states, 1)
	assert.Equal(t, ActivityThinking, states[0].Kind)
}
