// Package lane provides per-session concurrency control for inbound
// messages. Each session key gets its own lane that serializes turns and
// supports three modes:
//
//   - Followup: Process each message sequentially (FIFO)
//   - Collect:  Wait a time window, merge rapid-fire messages into one
//   - Interrupt: Discard queued messages, process only the latest
//
// Messages from different sessions run in parallel on separate lanes.
package lane

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/crewgate/crewgate/internal/bus"
)

// Mode defines the lane processing strategy.
type Mode string

const (
	ModeFollowup  Mode = "followup"  // Process each message sequentially.
	ModeCollect   Mode = "collect"   // Wait & merge rapid-fire messages.
	ModeInterrupt Mode = "interrupt" // Discard old, process latest only.
)

// defaultIdleTimeout is how long a lane worker lingers without traffic
// before exiting; the next message recreates the lane.
const defaultIdleTimeout = 5 * time.Minute

// Result is the outcome of a submitted message.
type Result struct {
	Message bus.OutboundMessage
	Merged  int  // how many inbound messages this turn covered (Collect)
	Dropped bool // discarded by a newer message (Interrupt)
}

// Handler runs one agent turn for a (possibly merged) inbound message.
type Handler func(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage

// turn wraps a message with its caller context and result channel.
type turn struct {
	ctx  context.Context
	msg  bus.InboundMessage
	done chan Result
}

// lane serializes one session's turns.
type lane struct {
	sessionKey string
	mode       Mode
	queue      chan turn

	mu         sync.Mutex
	busy       bool
	lastActive time.Time
}

// markBusy flags the lane as processing a turn.
func (l *lane) markBusy(busy bool) {
	l.mu.Lock()
	l.busy = busy
	l.lastActive = time.Now()
	l.mu.Unlock()
}

// idleSince reports whether the lane has been idle since before t.
func (l *lane) idleSince(t time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.busy && l.lastActive.Before(t)
}

func (l *lane) isBusy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// Manager owns the lanes of all sessions.
type Manager struct {
	mu    sync.RWMutex
	lanes map[string]*lane

	handler         Handler
	defaultMode     Mode
	collectWindow   time.Duration
	maxLanes        int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	stopCh          chan struct{}
}

// ManagerConfig configures a lane Manager.
type ManagerConfig struct {
	Handler         Handler
	DefaultMode     Mode
	CollectWindow   time.Duration // Collect window (default 2s)
	MaxLanes        int           // Max concurrent lanes (default 1000)
	IdleTimeout     time.Duration // Worker exit after idling (default 5m)
	CleanupInterval time.Duration // Idle lane cleanup interval (default 10m)
}

// NewManager creates a lane manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeFollowup
	}
	if cfg.CollectWindow == 0 {
		cfg.CollectWindow = 2 * time.Second
	}
	if cfg.MaxLanes == 0 {
		cfg.MaxLanes = 1000
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	m := &Manager{
		lanes:           make(map[string]*lane),
		handler:         cfg.Handler,
		defaultMode:     cfg.DefaultMode,
		collectWindow:   cfg.CollectWindow,
		maxLanes:        cfg.MaxLanes,
		idleTimeout:     cfg.IdleTimeout,
		cleanupInterval: cfg.CleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go m.periodicCleanup()
	return m
}

// Submit queues a message on its session's lane and waits for the result.
func (m *Manager) Submit(ctx context.Context, msg bus.InboundMessage, mode Mode) (Result, error) {
	item, err := m.enqueue(ctx, msg, mode)
	if err != nil {
		return Result{}, err
	}
	select {
	case result := <-item.done:
		return result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// SubmitAsync queues a message on its session's lane and returns the
// channel that will yield the result. The enqueue completes before
// SubmitAsync returns, so calls made in order from one goroutine keep
// their order within the lane.
func (m *Manager) SubmitAsync(ctx context.Context, msg bus.InboundMessage, mode Mode) (<-chan Result, error) {
	item, err := m.enqueue(ctx, msg, mode)
	if err != nil {
		return nil, err
	}
	return item.done, nil
}

// enqueue places the message on a live lane. A lane can retire between
// the lookup and the channel send; the liveness re-check catches that and
// moves the item to a fresh lane, so no accepted message is stranded.
func (m *Manager) enqueue(ctx context.Context, msg bus.InboundMessage, mode Mode) (turn, error) {
	if mode == "" {
		mode = m.defaultMode
	}
	item := turn{ctx: ctx, msg: msg, done: make(chan Result, 1)}

	for {
		l := m.laneFor(msg.SessionKey(), mode)
		select {
		case l.queue <- item:
		case <-ctx.Done():
			return turn{}, ctx.Err()
		}
		if m.isLive(msg.SessionKey(), l) {
			return item, nil
		}
		// The worker retired this lane before seeing our item; it sits
		// in a queue nobody drains. Re-enqueue on a fresh lane.
	}
}

func (m *Manager) isLive(sessionKey string, l *lane) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lanes[sessionKey] == l
}

func (m *Manager) laneFor(sessionKey string, mode Mode) *lane {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.lanes[sessionKey]; ok {
		return l
	}
	if len(m.lanes) >= m.maxLanes {
		m.evictIdle()
	}

	l := &lane{
		sessionKey: sessionKey,
		mode:       mode,
		queue:      make(chan turn, 100),
		lastActive: time.Now(),
	}
	m.lanes[sessionKey] = l
	go m.runWorker(l)
	return l
}

// runWorker is the per-lane worker loop.
func (m *Manager) runWorker(l *lane) {
	for {
		select {
		case item := <-l.queue:
			l.markBusy(true)
			m.runTurn(l, item)
			l.markBusy(false)

		case <-time.After(m.idleTimeout):
			// A submitter may have enqueued between the timer firing and
			// this point. Only retire a lane whose queue is empty; the
			// enqueue path re-checks liveness after the delete.
			m.mu.Lock()
			if len(l.queue) > 0 {
				m.mu.Unlock()
				continue
			}
			delete(m.lanes, l.sessionKey)
			m.mu.Unlock()
			return

		case <-m.stopCh:
			return
		}
	}
}

// runTurn processes one queued item per the lane's mode and delivers
// results to the waiting callers.
func (m *Manager) runTurn(l *lane, item turn) {
	switch l.mode {
	case ModeCollect:
		m.runCollect(l, item)
	case ModeInterrupt:
		m.runInterrupt(l, item)
	default:
		item.done <- Result{Message: m.handler(item.ctx, item.msg), Merged: 1}
	}
}

// runCollect waits out the collect window, merges everything queued in the
// meantime into one turn, and hands the shared result to every caller.
func (m *Manager) runCollect(l *lane, first turn) {
	window := time.NewTimer(m.collectWindow)
	defer window.Stop()

	contents := []string{first.msg.Content}
	var waiters []turn
	for open := true; open; {
		select {
		case extra := <-l.queue:
			contents = append(contents, extra.msg.Content)
			waiters = append(waiters, extra)
		case <-window.C:
			open = false
		}
	}

	merged := first.msg
	merged.Content = strings.Join(contents, "\n")
	if len(contents) > 1 {
		log.Printf("[Lane] Collect merged %d messages for session %s", len(contents), l.sessionKey)
	}

	result := Result{Message: m.handler(first.ctx, merged), Merged: len(contents)}
	first.done <- result
	for _, w := range waiters {
		w.done <- result
	}
}

// runInterrupt drains the queue, dropping everything but the newest
// message, and processes that one.
func (m *Manager) runInterrupt(l *lane, item turn) {
	latest := item
	for draining := true; draining; {
		select {
		case newer := <-l.queue:
			latest.done <- Result{Dropped: true}
			latest = newer
		default:
			draining = false
		}
	}
	latest.done <- Result{Message: m.handler(latest.ctx, latest.msg), Merged: 1}
}

// evictIdle removes long-idle lanes (called under lock).
func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for key, l := range m.lanes {
		if l.idleSince(cutoff) {
			delete(m.lanes, key)
		}
	}
}

func (m *Manager) periodicCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.evictIdle()
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

// Stop shuts down the manager and all lane workers.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// ActiveCount returns the number of lanes currently processing a turn.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, l := range m.lanes {
		if l.isBusy() {
			count++
		}
	}
	return count
}

// Stats returns lane manager statistics.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	total := len(m.lanes)
	m.mu.RUnlock()

	return map[string]any{
		"totalLanes":  total,
		"activeLanes": m.ActiveCount(),
		"defaultMode": string(m.defaultMode),
	}
}

// Describe returns a human-readable description of the lane mode.
func (mode Mode) Describe() string {
	switch mode {
	case ModeFollowup:
		return "Process each message sequentially"
	case ModeCollect:
		return "Wait and merge rapid-fire messages"
	case ModeInterrupt:
		return "Discard old, process only latest"
	default:
		return fmt.Sprintf("Unknown mode: %s", string(mode))
	}
}
