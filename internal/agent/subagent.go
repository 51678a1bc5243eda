package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/tools"
)

// SubagentManager runs background tasks spawned by an agent. Results are
// announced back through the bus into the spawning session, so the same
// agent picks them up as its next turn and the response reaches the
// channel the task came from.
type SubagentManager struct {
	Provider    providers.Provider
	Workspace   string
	AgentName   string
	Bus         *bus.MessageBus
	Engine      *tools.Engine
	Model       string
	MaxTokens   int
	Temperature float64

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSubagentManager creates a SubagentManager for one agent.
func NewSubagentManager(provider providers.Provider, agentName, workspace string, msgBus *bus.MessageBus, engine *tools.Engine, model string) *SubagentManager {
	return &SubagentManager{
		Provider:    provider,
		Workspace:   workspace,
		AgentName:   agentName,
		Bus:         msgBus,
		Engine:      engine,
		Model:       model,
		MaxTokens:   4096,
		Temperature: 0.7,
		running:     make(map[string]context.CancelFunc),
	}
}

// Spawn starts a subagent in the background and returns a status line
// suitable as a tool result.
func (sm *SubagentManager) Spawn(task, label, originChannel, originChatID string) (string, error) {
	taskID := uuid.NewString()[:8]
	if label == "" {
		if len(task) > 30 {
			label = task[:30] + "..."
		} else {
			label = task
		}
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sm.mu.Lock()
	sm.running[taskID] = cancel
	sm.mu.Unlock()

	go func() {
		defer func() {
			sm.mu.Lock()
			delete(sm.running, taskID)
			sm.mu.Unlock()
			cancel()
		}()
		sm.run(subCtx, taskID, task, label, originChannel, originChatID)
	}()

	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, taskID), nil
}

func (sm *SubagentManager) run(ctx context.Context, taskID, task, label, channel, chatID string) {
	// Subagents get a read/fetch-only toolset: no message, spawn, or
	// schedule, so they cannot recurse or talk to users directly.
	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{Root: sm.Workspace})
	registry.Register(&tools.WriteFileTool{Root: sm.Workspace})
	registry.Register(&tools.ListDirTool{Root: sm.Workspace})
	registry.Register(&tools.WebFetchTool{})

	messages := []providers.Message{
		{Role: "system", Content: sm.prompt(task)},
		{Role: "user", Content: task},
	}

	const maxIter = 15
	var finalResult string

	for i := 0; i < maxIter; i++ {
		resp, err := sm.Provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       registry.Schemas(),
			Model:       sm.Model,
			MaxTokens:   sm.MaxTokens,
			Temperature: sm.Temperature,
		})
		if err != nil {
			finalResult = fmt.Sprintf("Error: %v", err)
			break
		}

		if !resp.HasToolCalls() {
			finalResult = resp.Content
			if finalResult == "" {
				finalResult = "Task completed."
			}
			break
		}

		var callDicts []map[string]any
		for _, tc := range resp.ToolCalls {
			callDicts = append(callDicts, toolCallDict(tc))
		}
		messages = AddAssistantMessage(messages, resp.Content, callDicts)

		for _, tc := range resp.ToolCalls {
			var content string
			tool, err := registry.Resolve(tc.Name)
			if err != nil {
				content = fmt.Sprintf("Error: unknown tool %q", tc.Name)
			} else {
				res := sm.Engine.Execute(ctx, tool, tc.ID, tc.Arguments)
				content = res.Content
			}
			messages = AddToolResult(messages, tc.ID, tc.Name, content)
		}
	}

	if finalResult == "" {
		finalResult = "Task completed but no response was generated."
	}

	log.Printf("[Subagent] %s (%s) finished", label, taskID)

	// Announce into the origin session: the same binding resolves, so the
	// spawning agent handles the message, and the turn's response goes out
	// on the channel the task came from.
	if sm.Bus != nil {
		sm.Bus.PublishInbound(bus.InboundMessage{
			Channel:  channel,
			SenderID: "subagent:" + taskID,
			ChatID:   chatID,
			Content:  fmt.Sprintf("[Subagent '%s' completed]\n\nTask: %s\n\nResult:\n%s", label, task, finalResult),
		})
	}
}

func (sm *SubagentManager) prompt(task string) string {
	return fmt.Sprintf(`# Subagent

You are a subagent spawned by %q to complete a specific task.

## Rules
1. Stay focused - complete only the assigned task
2. Your final response will be reported back to the main agent
3. Be concise but informative

## What You Can Do
- Read and write files in the workspace
- Fetch web pages

## Workspace
%s`, sm.AgentName, sm.Workspace)
}

// RunningCount returns the number of active subagents.
func (sm *SubagentManager) RunningCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.running)
}

// StopAll cancels all running subagents.
func (sm *SubagentManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, cancel := range sm.running {
		cancel()
		delete(sm.running, id)
	}
}
