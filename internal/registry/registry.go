// Package registry maps sessions to agents and agent names to their
// configuration, hot-reloading the backing agents.yaml without restart.
//
// Reload discipline is swap-on-reload: every successful (re)load builds a
// fresh immutable snapshot and publishes it atomically, so readers always
// observe bindings and configs from the same generation.
package registry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAgentName serves any session with no explicit binding.
const DefaultAgentName = "main"

// AgentSpec defines a single agent identity (from agents.yaml).
type AgentSpec struct {
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Workspace     string   `yaml:"workspace,omitempty" json:"workspace,omitempty"`
	Model         string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature   float64  `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens     int      `yaml:"max_tokens,omitempty" json:"maxTokens,omitempty"`
	MaxIterations int      `yaml:"max_iterations,omitempty" json:"maxIterations,omitempty"`
	MemoryWindow  int      `yaml:"memory_window,omitempty" json:"memoryWindow,omitempty"`
	SystemPrompt  string   `yaml:"system_prompt,omitempty" json:"systemPrompt,omitempty"`
	Tools         []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	Default       bool     `yaml:"default,omitempty" json:"default,omitempty"`
}

// Defaults fill zero-valued AgentSpec fields at load time.
type Defaults struct {
	WorkspaceDir  string
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int
	MemoryWindow  int
}

// ConfigInvalidError rejects a reload; the previous table stays active.
type ConfigInvalidError struct {
	Path   string
	Detail string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("invalid agent config %s: %s", e.Path, e.Detail)
}

// ErrAgentNotFound is wrapped when GetConfig misses.
var ErrAgentNotFound = fmt.Errorf("agent not found")

// agentsFile is the on-disk layout of agents.yaml.
type agentsFile struct {
	Agents   []AgentSpec       `yaml:"agents"`
	Bindings map[string]string `yaml:"bindings,omitempty"`
}

// snapshot is one immutable reload generation.
type snapshot struct {
	generation  uint64
	agents      map[string]AgentSpec
	agentGens   map[string]uint64 // bumped only when that agent's spec changed
	bindings    map[string]string
	defaultName string
	mtime       time.Time
}

// Registry is the agent binding registry.
type Registry struct {
	path     string
	defaults Defaults

	mu   sync.Mutex // serializes reloads and file writes
	snap atomic.Pointer[snapshot]
}

// New loads the initial snapshot from path. A missing file yields a
// single default "main" agent built from the defaults.
func New(path string, defaults Defaults) (*Registry, error) {
	r := &Registry{path: path, defaults: defaults}
	snap, err := r.buildSnapshot(nil)
	if err != nil {
		return nil, err
	}
	r.snap.Store(snap)
	return r, nil
}

// ResolveAgent returns the agent name serving sessionKey, falling back to
// the default agent for unbound sessions. Staleness of the backing file is
// checked on every call.
func (r *Registry) ResolveAgent(sessionKey string) string {
	r.maybeReload()
	snap := r.snap.Load()
	if name, ok := snap.bindings[sessionKey]; ok {
		return name
	}
	return snap.defaultName
}

// GetConfig returns the config for the named agent.
func (r *Registry) GetConfig(name string) (AgentSpec, error) {
	r.maybeReload()
	snap := r.snap.Load()
	spec, ok := snap.agents[name]
	if !ok {
		return AgentSpec{}, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return spec, nil
}

// Generation returns the per-agent config generation; it changes only when
// that agent's spec changed across a reload. Unknown agents return 0.
func (r *Registry) Generation(name string) uint64 {
	r.maybeReload()
	return r.snap.Load().agentGens[name]
}

// DefaultAgent returns the configured default agent name.
func (r *Registry) DefaultAgent() string {
	r.maybeReload()
	return r.snap.Load().defaultName
}

// ListAgents returns all agent specs of the current generation.
func (r *Registry) ListAgents() []AgentSpec {
	r.maybeReload()
	snap := r.snap.Load()
	out := make([]AgentSpec, 0, len(snap.agents))
	for _, spec := range snap.agents {
		out = append(out, spec)
	}
	return out
}

// ListBindings returns a copy of the current session bindings.
func (r *Registry) ListBindings() map[string]string {
	r.maybeReload()
	snap := r.snap.Load()
	out := make(map[string]string, len(snap.bindings))
	for k, v := range snap.bindings {
		out[k] = v
	}
	return out
}

// Bind assigns sessionKey to agentName, persisting to agents.yaml and
// reloading. Unknown agent names are rejected.
func (r *Registry) Bind(sessionKey, agentName string) error {
	return r.rewrite(func(f *agentsFile) error {
		found := false
		for _, a := range f.Agents {
			if a.Name == agentName {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, agentName)
		}
		if f.Bindings == nil {
			f.Bindings = make(map[string]string)
		}
		f.Bindings[sessionKey] = agentName
		return nil
	})
}

// Unbind removes a session binding; the session falls back to the default
// agent.
func (r *Registry) Unbind(sessionKey string) error {
	return r.rewrite(func(f *agentsFile) error {
		delete(f.Bindings, sessionKey)
		return nil
	})
}

// Reload forces a reload of the backing file. On validation failure the
// previous snapshot stays active and a ConfigInvalidError is returned.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked()
}

// maybeReload reloads when the backing file's mtime moved past the
// snapshot's. Failures keep the previous table and are logged, not raised:
// resolution must keep working through a broken edit.
func (r *Registry) maybeReload() {
	info, err := os.Stat(r.path)
	if err != nil {
		return
	}
	if !info.ModTime().After(r.snap.Load().mtime) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the lock; another goroutine may have reloaded.
	if !info.ModTime().After(r.snap.Load().mtime) {
		return
	}
	if err := r.reloadLocked(); err != nil {
		log.Printf("[Registry] reload rejected, keeping previous config: %v", err)
	}
}

func (r *Registry) reloadLocked() error {
	prev := r.snap.Load()
	next, err := r.buildSnapshot(prev)
	if err != nil {
		return err
	}
	r.snap.Store(next)
	log.Printf("[Registry] loaded generation %d: %d agents, %d bindings",
		next.generation, len(next.agents), len(next.bindings))
	return nil
}

// buildSnapshot parses, validates, and normalizes the backing file into a
// fresh snapshot. prev carries generation bookkeeping; nil means first load.
func (r *Registry) buildSnapshot(prev *snapshot) (*snapshot, error) {
	var f agentsFile
	var mtime time.Time

	data, err := os.ReadFile(r.path)
	switch {
	case os.IsNotExist(err):
		// No agents file: single-agent mode with the default identity.
		f.Agents = []AgentSpec{{Name: DefaultAgentName, Default: true}}
	case err != nil:
		return nil, &ConfigInvalidError{Path: r.path, Detail: err.Error()}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, &ConfigInvalidError{Path: r.path, Detail: err.Error()}
		}
		if info, err := os.Stat(r.path); err == nil {
			mtime = info.ModTime()
		}
	}

	if len(f.Agents) == 0 {
		return nil, &ConfigInvalidError{Path: r.path, Detail: "no agents defined"}
	}

	agents := make(map[string]AgentSpec, len(f.Agents))
	defaultName := ""
	for i := range f.Agents {
		spec := r.normalize(f.Agents[i])
		if spec.Name == "" {
			return nil, &ConfigInvalidError{Path: r.path, Detail: "agent with empty name"}
		}
		if _, dup := agents[spec.Name]; dup {
			return nil, &ConfigInvalidError{Path: r.path, Detail: "duplicate agent name: " + spec.Name}
		}
		agents[spec.Name] = spec
		if spec.Default {
			if defaultName != "" {
				return nil, &ConfigInvalidError{Path: r.path, Detail: "multiple default agents"}
			}
			defaultName = spec.Name
		}
	}
	if defaultName == "" {
		if _, ok := agents[DefaultAgentName]; ok {
			defaultName = DefaultAgentName
		} else {
			return nil, &ConfigInvalidError{Path: r.path,
				Detail: fmt.Sprintf("no default agent and no %q agent", DefaultAgentName)}
		}
	}
	for sessionKey, agentName := range f.Bindings {
		if _, ok := agents[agentName]; !ok {
			return nil, &ConfigInvalidError{Path: r.path,
				Detail: fmt.Sprintf("binding %s references unknown agent %s", sessionKey, agentName)}
		}
	}

	gen := uint64(1)
	if prev != nil {
		gen = prev.generation + 1
	}
	agentGens := make(map[string]uint64, len(agents))
	for name, spec := range agents {
		if prev != nil {
			if old, ok := prev.agents[name]; ok && specEqual(old, spec) {
				agentGens[name] = prev.agentGens[name]
				continue
			}
		}
		agentGens[name] = gen
	}

	bindings := f.Bindings
	if bindings == nil {
		bindings = map[string]string{}
	}

	return &snapshot{
		generation:  gen,
		agents:      agents,
		agentGens:   agentGens,
		bindings:    bindings,
		defaultName: defaultName,
		mtime:       mtime,
	}, nil
}

// normalize fills zero-valued fields from the registry defaults.
func (r *Registry) normalize(spec AgentSpec) AgentSpec {
	if spec.Workspace == "" && r.defaults.WorkspaceDir != "" {
		spec.Workspace = filepath.Join(r.defaults.WorkspaceDir, spec.Name)
	}
	if spec.Model == "" {
		spec.Model = r.defaults.Model
	}
	if spec.Temperature == 0 {
		spec.Temperature = r.defaults.Temperature
	}
	if spec.MaxTokens == 0 {
		spec.MaxTokens = r.defaults.MaxTokens
	}
	if spec.MaxIterations == 0 {
		spec.MaxIterations = r.defaults.MaxIterations
	}
	if spec.MemoryWindow == 0 {
		spec.MemoryWindow = r.defaults.MemoryWindow
	}
	return spec
}

func specEqual(a, b AgentSpec) bool {
	if a.Name != b.Name || a.Workspace != b.Workspace || a.Model != b.Model ||
		a.Temperature != b.Temperature || a.MaxTokens != b.MaxTokens ||
		a.MaxIterations != b.MaxIterations || a.MemoryWindow != b.MemoryWindow ||
		a.SystemPrompt != b.SystemPrompt || a.Default != b.Default ||
		len(a.Tools) != len(b.Tools) {
		return false
	}
	for i := range a.Tools {
		if a.Tools[i] != b.Tools[i] {
			return false
		}
	}
	return true
}

// rewrite loads the backing file, applies mutate, writes it back atomically,
// and reloads. Used by Bind/Unbind.
func (r *Registry) rewrite(mutate func(*agentsFile) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var f agentsFile
	data, err := os.ReadFile(r.path)
	switch {
	case os.IsNotExist(err):
		// Materialize the implicit single-agent file so the binding has
		// somewhere to live.
		f.Agents = []AgentSpec{{Name: DefaultAgentName, Default: true}}
	case err != nil:
		return fmt.Errorf("read %s: %w", r.path, err)
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return &ConfigInvalidError{Path: r.path, Detail: err.Error()}
		}
	}

	if err := mutate(&f); err != nil {
		return err
	}

	out, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return err
	}
	return r.reloadLocked()
}
