package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/tools"
)

func testSubagentManager(t *testing.T, mp providers.Provider, msgBus *bus.MessageBus) *SubagentManager {
	ws := t.TempDir()
	engine, err := tools.NewEngine(tools.Policy{WorkspaceRoot: ws})
	require.NoError(t, err)
	return NewSubagentManager(mp, "main", ws, msgBus, engine, "mock-model")
}

func TestSubagentManager_Spawn(t *testing.T) {
	mp := &mockProvider{responses: []*providers.ChatResponse{
		{Content: "Task done", FinishReason: "stop"},
	}}
	sm := testSubagentManager(t, mp, bus.New())

	result, err := sm.Spawn("Search for Go docs", "go-docs", "telegram", "123")
	require.NoError(t, err)
	assert.Contains(t, result, "go-docs")
	assert.Contains(t, result, "started")

	// Wait for subagent to complete
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, sm.RunningCount())
}

func TestSubagentManager_RunningCount(t *testing.T) {
	sm := testSubagentManager(t, &mockProvider{}, nil)
	assert.Equal(t, 0, sm.RunningCount())
}

func TestSubagentManager_LabelTruncation(t *testing.T) {
	mp := &mockProvider{responses: []*providers.ChatResponse{
		{Content: "done", FinishReason: "stop"},
	}}
	sm := testSubagentManager(t, mp, nil)

	result, err := sm.Spawn("This is a very long task description that should be truncated", "", "cli", "direct")
	require.NoError(t, err)
	assert.Contains(t, result, "This is a very long task descr...")
}

func TestSubagentManager_AnnouncesResult(t *testing.T) {
	mp := &mockProvider{responses: []*providers.ChatResponse{
		{Content: "Search complete: found 3 results", FinishReason: "stop"},
	}}
	msgBus := bus.New()
	sm := testSubagentManager(t, mp, msgBus)

	_, err := sm.Spawn("Search task", "search", "telegram", "42")
	require.NoError(t, err)

	// The announce lands in the session the task was spawned from, so the
	// binding resolves to the same agent and the reply has a subscriber.
	select {
	case msg := <-msgBus.Inbound():
		assert.Equal(t, "telegram", msg.Channel)
		assert.Equal(t, "42", msg.ChatID)
		assert.Equal(t, "telegram:42", msg.SessionKey())
		assert.Contains(t, msg.SenderID, "subagent:")
		assert.Contains(t, msg.Content, "completed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bus message")
	}
}
