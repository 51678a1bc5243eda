package channels

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/crewgate/crewgate/internal/bus"
)

// Manager owns all channel instances and subscribes each to its outbound
// messages. The orchestrator runs the bus dispatch loop.
type Manager struct {
	Bus      *bus.MessageBus
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewManager creates a channel manager.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		Bus:      msgBus,
		channels: make(map[string]Channel),
	}
}

// Register adds a channel and subscribes it to its outbound messages.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.mu.Unlock()

	name := ch.Name()
	m.Bus.Subscribe(name, func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[Channels] send via %s failed: %v", name, err)
		}
	})
}

// Get returns a channel by name, or nil if not registered.
func (m *Manager) Get(name string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// EnabledChannels returns the sorted list of registered channel names.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// StartAll starts every registered channel concurrently and blocks until
// all of them have stopped.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	snapshot := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		snapshot[name] = ch
	}
	m.mu.RUnlock()

	if len(snapshot) == 0 {
		log.Println("[Channels] none enabled")
		return nil
	}

	var wg sync.WaitGroup
	for name, ch := range snapshot {
		wg.Add(1)
		go func(n string, c Channel) {
			defer wg.Done()
			log.Printf("[Channels] starting %s", n)
			if err := c.Start(ctx); err != nil {
				log.Printf("[Channels] %s error: %v", n, err)
			}
		}(name, ch)
	}
	wg.Wait()
	return nil
}

// StopAll stops all channels.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			log.Printf("[Channels] stop %s failed: %v", name, err)
		}
	}
}

// GetStatus reports each channel's running state keyed by name.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}
