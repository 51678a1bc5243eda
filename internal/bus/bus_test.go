package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInboundMessage_SessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", ChatID: "123"}
	assert.Equal(t, "telegram:123", msg.SessionKey())
}

func TestNew(t *testing.T) {
	b := New()
	assert.NotNil(t, b)
	assert.Equal(t, 0, b.InboundSize())
	assert.Equal(t, 0, b.OutboundSize())
}

func TestMessageBus_PublishConsumeInbound(t *testing.T) {
	b := New()
	b.PublishInbound(InboundMessage{Channel: "telegram", ChatID: "42", Content: "hello"})
	assert.Equal(t, 1, b.InboundSize())

	received := <-b.Inbound()
	assert.Equal(t, "hello", received.Content)
	assert.Equal(t, "telegram:42", received.SessionKey())
	assert.False(t, received.ReceivedAt.IsZero())
}

func TestMessageBus_SubscribeAndDispatch(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var received []OutboundMessage
	b.Subscribe("telegram", func(msg OutboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "1", Content: "reply"})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "reply", received[0].Content)
	assert.False(t, received[0].CreatedAt.IsZero())
}

func TestMessageBus_SubscribeDoesNotReceiveOtherChannels(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var received []OutboundMessage
	b.Subscribe("telegram", func(msg OutboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(OutboundMessage{Channel: "discord", ChatID: "1", Content: "wrong"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, received)
}

func TestMessageBus_ConcurrentPublish(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.PublishInbound(InboundMessage{Channel: "test", ChatID: "x", Content: "msg"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, b.InboundSize())
}
