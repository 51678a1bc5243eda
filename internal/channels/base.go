// Package channels implements chat platform adapters. Channels publish
// inbound messages to the bus and deliver outbound messages addressed to
// them; they never talk to agents directly.
package channels

import (
	"context"
	"slices"
	"strings"

	"github.com/crewgate/crewgate/internal/bus"
)

// Channel is the interface every chat platform adapter implements.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram", "websocket").
	Name() string

	// Start connects to the platform and begins listening. Blocks until
	// ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Send delivers an outbound message through this channel.
	Send(msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is active.
	IsRunning() bool
}

// BaseChannel provides allowlist filtering and bus publishing shared by
// all adapters.
type BaseChannel struct {
	ChannelName string
	Bus         *bus.MessageBus
	AllowFrom   []string
	Running     bool
}

// IsAllowed checks if a sender is permitted to interact with the gateway.
// An empty allowlist permits everyone. Sender IDs may carry pipe-separated
// alternates ("id|username"); any alternate matching the allowlist passes.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	for _, candidate := range strings.Split(senderID, "|") {
		if candidate != "" && slices.Contains(b.AllowFrom, candidate) {
			return true
		}
	}
	return false
}

// HandleMessage checks permissions and publishes to the bus. Messages from
// senders outside the allowlist are silently dropped.
func (b *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]any) {
	if !b.IsAllowed(senderID) {
		return
	}
	b.Bus.PublishInbound(bus.InboundMessage{
		Channel:  b.ChannelName,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Media:    media,
		Metadata: metadata,
	})
}
