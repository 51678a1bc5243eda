package tools

import (
	"context"
	"fmt"

	"github.com/crewgate/crewgate/internal/bus"
)

// SendFunc delivers an outbound message through the bus.
type SendFunc func(msg bus.OutboundMessage) error

// MessageTool sends messages to users on chat channels mid-turn, e.g. to
// report progress on a long task.
type MessageTool struct {
	Send           SendFunc
	DefaultChannel string
	DefaultChatID  string
}

func (t *MessageTool) Name() string        { return "message" }
func (t *MessageTool) Description() string { return "Send a message to the user." }
func (t *MessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "The message content to send"},
			"channel": map[string]any{"type": "string", "description": "Optional: target channel"},
			"chat_id": map[string]any{"type": "string", "description": "Optional: target chat/user ID"},
		},
		"required": []string{"content"},
	}
}

// SetContext points the tool at the session currently being processed.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.DefaultChannel = channel
	t.DefaultChatID = chatID
}

func (t *MessageTool) Execute(_ context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	channel, _ := args["channel"].(string)
	chatID, _ := args["chat_id"].(string)

	if channel == "" {
		channel = t.DefaultChannel
	}
	if chatID == "" {
		chatID = t.DefaultChatID
	}
	if channel == "" || chatID == "" {
		return "Error: No target channel/chat specified", nil
	}
	if t.Send == nil {
		return "Error: Message sending not configured", nil
	}

	if err := t.Send(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content}); err != nil {
		return fmt.Sprintf("Error sending message: %v", err), nil
	}
	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}

// SpawnFunc starts a background subagent and returns a status line.
type SpawnFunc func(task, label, channel, chatID string) (string, error)

// SpawnTool spawns a subagent for background task execution.
type SpawnTool struct {
	Spawn         SpawnFunc
	OriginChannel string
	OriginChatID  string
}

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Spawn a subagent to handle a task in the background."
}
func (t *SpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":  map[string]any{"type": "string", "description": "The task for the subagent"},
			"label": map[string]any{"type": "string", "description": "Optional short label"},
		},
		"required": []string{"task"},
	}
}

// SetContext sets the origin session for completion announcements.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.OriginChannel = channel
	t.OriginChatID = chatID
}

func (t *SpawnTool) Execute(_ context.Context, args map[string]any) (string, error) {
	task, _ := args["task"].(string)
	label, _ := args["label"].(string)

	if t.Spawn == nil {
		return "Error: Subagent spawning not configured", nil
	}
	return t.Spawn(task, label, t.OriginChannel, t.OriginChatID)
}
