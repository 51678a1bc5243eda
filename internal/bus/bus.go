package bus

import (
	"context"
	"sync"
	"time"
)

// defaultQueueSize bounds the channel buffers; publishers block once the
// buffer fills, so bursts queue rather than drop.
const defaultQueueSize = 256

// MessageBus routes messages between chat channels and the orchestration
// core. Channels publish inbound messages, the core consumes them; the
// core publishes outbound messages, channels consume those via Subscribe.
// Delivery is at-least-once within the process lifetime.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]func(OutboundMessage)
}

// New creates a message bus with buffered queues.
func New() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, defaultQueueSize),
		outbound:    make(chan OutboundMessage, defaultQueueSize),
		subscribers: make(map[string][]func(OutboundMessage)),
	}
}

// PublishInbound hands a message from a channel to the core.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	b.inbound <- msg
}

// PublishOutbound hands a response from the core to channel dispatch.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	b.outbound <- msg
}

// Inbound returns the queue the orchestration core drains.
func (b *MessageBus) Inbound() <-chan InboundMessage {
	return b.inbound
}

// Subscribe registers a delivery callback for outbound messages addressed
// to the named channel.
func (b *MessageBus) Subscribe(channel string, callback func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], callback)
}

// DispatchOutbound runs the outbound fan-out loop until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbound:
			b.mu.RLock()
			subs := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(msg)
			}
		}
	}
}

// InboundSize returns the number of queued inbound messages.
func (b *MessageBus) InboundSize() int { return len(b.inbound) }

// OutboundSize returns the number of queued outbound messages.
func (b *MessageBus) OutboundSize() int { return len(b.outbound) }
