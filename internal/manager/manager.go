// Package manager owns the lazy lifecycle of agent instances: one live
// Loop per agent identity, built on first use and retired when the
// registry reloads a changed spec.
package manager

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/crewgate/crewgate/internal/agent"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/registry"
	"github.com/crewgate/crewgate/internal/utils"
)

// entry is one cached instance. ready is closed once loop/err is set, so
// concurrent first-callers block on a single construction.
type entry struct {
	ready      chan struct{}
	loop       *agent.Loop
	err        error
	generation uint64
}

// InstanceManager builds and caches agent instances.
type InstanceManager struct {
	registry *registry.Registry
	provider providers.Provider
	deps     agent.Deps

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an InstanceManager. All instances share the given deps.
func New(reg *registry.Registry, provider providers.Provider, deps agent.Deps) *InstanceManager {
	return &InstanceManager{
		registry: reg,
		provider: provider,
		deps:     deps,
		entries:  make(map[string]*entry),
	}
}

// GetOrCreate returns the live instance for the named agent, constructing
// it at most once per config generation. When the registry's generation
// for the agent has moved, the stale instance is retired (any in-flight
// turn finishes on it) and a fresh one is built.
func (m *InstanceManager) GetOrCreate(name string) (*agent.Loop, error) {
	m.mu.Lock()
	// Read the generation under the lock, so two callers racing a reload
	// cannot both install entries for different generations.
	gen := m.registry.Generation(name)
	if e, ok := m.entries[name]; ok {
		if e.generation == gen {
			m.mu.Unlock()
			<-e.ready
			if e.err != nil {
				return nil, e.err
			}
			return e.loop, nil
		}
		delete(m.entries, name)
		go retire(name, e)
	}

	e := &entry{ready: make(chan struct{}), generation: gen}
	m.entries[name] = e
	m.mu.Unlock()

	e.loop, e.err = m.build(name)
	close(e.ready)

	if e.err != nil {
		m.mu.Lock()
		if m.entries[name] == e {
			delete(m.entries, name)
		}
		m.mu.Unlock()
		return nil, e.err
	}

	log.Printf("[Manager] agent %q instantiated (generation %d)", name, gen)
	return e.loop, nil
}

func (m *InstanceManager) build(name string) (*agent.Loop, error) {
	spec, err := m.registry.GetConfig(name)
	if err != nil {
		return nil, err
	}
	if _, err := utils.EnsureDir(spec.Workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace for %s: %w", name, err)
	}
	return agent.NewLoop(spec, m.provider, m.deps), nil
}

// retire shuts a stale instance down once its construction (and any
// waiters) have finished with it.
func retire(name string, e *entry) {
	<-e.ready
	if e.loop != nil {
		e.loop.Shutdown()
		log.Printf("[Manager] agent %q retired (generation %d)", name, e.generation)
	}
}

// ForSession resolves the session's binding and returns that agent's
// instance.
func (m *InstanceManager) ForSession(sessionKey string) (*agent.Loop, error) {
	return m.GetOrCreate(m.registry.ResolveAgent(sessionKey))
}

// ActiveAgents returns the names of currently instantiated agents.
func (m *InstanceManager) ActiveAgents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown stops all live instances.
func (m *InstanceManager) Shutdown() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for name, e := range m.entries {
		entries = append(entries, e)
		delete(m.entries, name)
	}
	m.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.loop != nil {
			e.loop.Shutdown()
		}
	}
}
