package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/crewgate/crewgate/internal/providers"
)

// BootstrapFiles are loaded into the system prompt when present in the
// agent's workspace.
var BootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// ContextBuilder assembles the system prompt and message list for one agent.
type ContextBuilder struct {
	AgentName    string
	Workspace    string
	SystemPrompt string // optional persona override from the agent spec
	Memory       *MemoryStore
	Skills       *SkillsLoader
}

// NewContextBuilder creates a ContextBuilder for an agent workspace.
func NewContextBuilder(agentName, workspace, systemPrompt string) *ContextBuilder {
	return &ContextBuilder{
		AgentName:    agentName,
		Workspace:    workspace,
		SystemPrompt: systemPrompt,
		Memory:       NewMemoryStore(workspace),
		Skills:       NewSkillsLoader(workspace, ""),
	}
}

// BuildSystemPrompt assembles identity, bootstrap files, memory, and the
// skills summary.
func (c *ContextBuilder) BuildSystemPrompt() string {
	var parts []string

	parts = append(parts, c.identity())

	if bs := c.loadBootstrapFiles(); bs != "" {
		parts = append(parts, bs)
	}

	if mem := c.Memory.GetMemoryContext(); mem != "" {
		parts = append(parts, fmt.Sprintf("# Memory\n\n%s", mem))
	}

	if summary := c.Skills.BuildSkillsSummary(); summary != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.

%s`, summary))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (c *ContextBuilder) identity() string {
	persona := c.SystemPrompt
	if persona == "" {
		persona = fmt.Sprintf(`You are %q, a helpful assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels
- Spawn subagents for complex background tasks
- Schedule reminders and recurring tasks

Always be helpful, accurate, and concise.`, c.AgentName)
	}

	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	sys := runtime.GOOS
	if sys == "darwin" {
		sys = "macOS"
	}
	rt := fmt.Sprintf("%s %s, Go %s", sys, runtime.GOARCH, runtime.Version())
	ws, _ := filepath.Abs(c.Workspace)

	return fmt.Sprintf(`# %s

%s

## Current Time
%s (%s)

## Runtime
%s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md (grep-searchable)
- Custom skills: %s/skills/{skill-name}/SKILL.md`,
		c.AgentName, persona, now, tz, rt, ws, ws, ws, ws)
}

func (c *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range BootstrapFiles {
		path := filepath.Join(c.Workspace, name)
		data, err := os.ReadFile(path)
		if err == nil {
			parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages constructs the full message list for a model call.
func (c *ContextBuilder) BuildMessages(history []providers.Message, userMsg, channel, chatID string) []providers.Message {
	systemPrompt := c.BuildSystemPrompt()
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: userMsg})
	return messages
}

// AddAssistantMessage appends an assistant message with its tool calls.
func AddAssistantMessage(messages []providers.Message, content string, toolCalls []map[string]any) []providers.Message {
	return append(messages, providers.Message{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResult appends a tool result keyed to its originating call.
func AddToolResult(messages []providers.Message, toolCallID, toolName, result string) []providers.Message {
	return append(messages, providers.Message{
		Role:       "tool",
		ToolCallID: toolCallID,
		Name:       toolName,
		Content:    result,
	})
}
