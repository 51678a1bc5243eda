package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewgate/crewgate/internal/agent"
	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/lane"
	"github.com/crewgate/crewgate/internal/manager"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/registry"
	"github.com/crewgate/crewgate/internal/session"
	"github.com/crewgate/crewgate/internal/tools"
)

// scriptedProvider plays back a fixed sequence of responses.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*providers.ChatResponse
	requests  []providers.ChatRequest
	calls     int
}

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	p.calls++
	if p.calls > len(p.responses) {
		return &providers.ChatResponse{Content: "done", FinishReason: "stop"}, nil
	}
	return p.responses[p.calls-1], nil
}

func (p *scriptedProvider) DefaultModel() string { return "scripted" }

const agentsYAML = `agents:
  - name: main
    default: true
  - name: backend_dev
bindings:
  telegram:1: backend_dev
`

func testOrchestrator(t *testing.T, provider providers.Provider) (*Orchestrator, *registry.Registry) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(agentsYAML), 0o644))

	reg, err := registry.New(path, registry.Defaults{
		WorkspaceDir:  filepath.Join(dir, "workspaces"),
		Model:         "scripted",
		MaxTokens:     1024,
		MaxIterations: 5,
		MemoryWindow:  10,
	})
	require.NoError(t, err)

	b := bus.New()
	engine, err := tools.NewEngine(tools.Policy{
		WorkspaceRoot: filepath.Join(dir, "workspaces"),
		DenyPatterns:  tools.DefaultDenyPatterns,
	})
	require.NoError(t, err)

	mgr := manager.New(reg, provider, agent.Deps{
		Bus:      b,
		Engine:   engine,
		Sessions: session.NewManager(t.TempDir()),
	})

	return New(Config{
		Bus:      b,
		Registry: reg,
		Manager:  mgr,
		LaneMode: lane.ModeFollowup,
	}), reg
}

// runTurn publishes one inbound message against a running orchestrator
// and returns the outbound response.
func runTurn(t *testing.T, o *Orchestrator, msg bus.InboundMessage) bus.OutboundMessage {
	t.Helper()

	out := make(chan bus.OutboundMessage, 1)
	o.Bus.Subscribe(msg.Channel, func(m bus.OutboundMessage) { out <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	o.Bus.PublishInbound(msg)

	select {
	case m := <-out:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for outbound message")
		return bus.OutboundMessage{}
	}
}

func TestOrchestrator_BoundAgentRunsToolTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCallRequest{
				{ID: "call_1", Name: "list_dir", Arguments: map[string]any{"path": "."}},
			},
		},
		{Content: "The workspace is empty.", FinishReason: "stop"},
	}}
	o, _ := testOrchestrator(t, provider)

	out := runTurn(t, o, bus.InboundMessage{
		Channel: "telegram", SenderID: "1", ChatID: "1", Content: "list files",
	})

	assert.Equal(t, "The workspace is empty.", out.Content)
	assert.Equal(t, "telegram", out.Channel)
	assert.Equal(t, "1", out.ChatID)

	// The turn ran on backend_dev, per the binding
	require.GreaterOrEqual(t, len(provider.requests), 1)
	assert.Contains(t, provider.requests[0].Messages[0].Content, "backend_dev")

	// The tool result round-tripped: second request carries a tool message
	var sawToolResult bool
	for _, m := range provider.requests[1].Messages {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult)
}

func TestOrchestrator_DeniedCommandFedBackToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCallRequest{
				{ID: "call_1", Name: "exec", Arguments: map[string]any{"command": "rm -rf /"}},
			},
		},
		{Content: "I can't run that command.", FinishReason: "stop"},
	}}
	o, _ := testOrchestrator(t, provider)

	out := runTurn(t, o, bus.InboundMessage{
		Channel: "telegram", SenderID: "9", ChatID: "9", Content: "wipe the disk",
	})

	assert.Equal(t, "I can't run that command.", out.Content)

	// The model saw the rejection, and no process ever ran
	var toolResult string
	for _, m := range provider.requests[1].Messages {
		if m.Role == "tool" {
			toolResult = m.Content
		}
	}
	assert.Contains(t, toolResult, "denied")
}

func TestOrchestrator_SubagentCompletionReachesSpawningAgent(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCallRequest{
				{ID: "call_1", Name: "spawn", Arguments: map[string]any{"task": "summarize the repo"}},
			},
		},
		{Content: "Working on it in the background.", FinishReason: "stop"},
		{Content: "Repo summarized.", FinishReason: "stop"},
		{Content: "Your background task is done.", FinishReason: "stop"},
	}}
	o, _ := testOrchestrator(t, provider)

	out := make(chan bus.OutboundMessage, 2)
	o.Bus.Subscribe("telegram", func(m bus.OutboundMessage) { out <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	// telegram:1 is bound to backend_dev, not the default agent
	o.Bus.PublishInbound(bus.InboundMessage{
		Channel: "telegram", SenderID: "1", ChatID: "1", Content: "do this in the background",
	})

	// First the spawn turn's reply, then the completion turn's reply
	for i := 0; i < 2; i++ {
		select {
		case m := <-out:
			assert.Equal(t, "telegram", m.Channel)
			assert.Equal(t, "1", m.ChatID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for outbound message %d", i+1)
		}
	}

	// The completion announce ran as a turn of the spawning agent
	provider.mu.Lock()
	defer provider.mu.Unlock()
	last := provider.requests[len(provider.requests)-1]
	assert.Contains(t, last.Messages[0].Content, "backend_dev")
	var sawAnnounce bool
	for _, m := range last.Messages {
		if strings.Contains(m.Content, "[Subagent") && strings.Contains(m.Content, "completed") {
			sawAnnounce = true
		}
	}
	assert.True(t, sawAnnounce)
}

func TestOrchestrator_SessionMessagesProcessedInArrivalOrder(t *testing.T) {
	provider := &scriptedProvider{}
	o, _ := testOrchestrator(t, provider)

	const n = 50
	out := make(chan bus.OutboundMessage, n)
	o.Bus.Subscribe("telegram", func(m bus.OutboundMessage) { out <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	for i := 0; i < n; i++ {
		o.Bus.PublishInbound(bus.InboundMessage{
			Channel: "telegram", SenderID: "7", ChatID: "777",
			Content: fmt.Sprintf("msg-%03d", i),
		})
	}

	for i := 0; i < n; i++ {
		select {
		case <-out:
		case <-time.After(10 * time.Second):
			t.Fatalf("timeout waiting for response %d of %d", i+1, n)
		}
	}

	// One session, so arrival order is processing order: the i-th turn's
	// request must carry the i-th message as its latest user message.
	require.Len(t, provider.requests, n)
	for i, req := range provider.requests {
		var lastUser string
		for _, m := range req.Messages {
			if m.Role == "user" {
				lastUser = m.Content
			}
		}
		assert.Equal(t, fmt.Sprintf("msg-%03d", i), lastUser)
	}
}

func TestOrchestrator_UnboundSessionUsesDefault(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "hello from main", FinishReason: "stop"},
	}}
	o, _ := testOrchestrator(t, provider)

	out := runTurn(t, o, bus.InboundMessage{
		Channel: "telegram", SenderID: "7", ChatID: "777", Content: "hi",
	})

	assert.Equal(t, "hello from main", out.Content)
	assert.Contains(t, provider.requests[0].Messages[0].Content, "main")
}
