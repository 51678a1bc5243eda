// Package bus provides the async message bus decoupling chat channels
// from the agent orchestration core.
package bus

import "time"

// InboundMessage is a message received from a chat channel. It is
// immutable once published; ownership passes to the bus on publish.
type InboundMessage struct {
	Channel    string         `json:"channel"`
	SenderID   string         `json:"sender_id"`
	ChatID     string         `json:"chat_id"`
	Content    string         `json:"content"`
	ReceivedAt time.Time      `json:"received_at"`
	Media      []string       `json:"media,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SessionKey returns the channel-qualified session identifier,
// e.g. "telegram:123".
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a response to be delivered through a chat channel.
// Exactly one is produced per completed agent turn.
type OutboundMessage struct {
	Channel   string         `json:"channel"`
	ChatID    string         `json:"chat_id"`
	Content   string         `json:"content"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Media     []string       `json:"media,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SessionKey returns the channel-qualified session identifier.
func (m *OutboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}
