package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crewgate/crewgate/internal/agent"
	"github.com/crewgate/crewgate/internal/config"
	"github.com/crewgate/crewgate/internal/contextguard"
	"github.com/crewgate/crewgate/internal/manager"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/registry"
	"github.com/crewgate/crewgate/internal/session"
	"github.com/crewgate/crewgate/internal/tools"
	"github.com/crewgate/crewgate/internal/utils"
)

// makeProvider creates a Provider from config, falling back to common
// environment variables for the API key.
func makeProvider(cfg config.Config) providers.Provider {
	apiKey := cfg.Provider.APIKey
	apiBase := cfg.Provider.APIBase
	model := cfg.Provider.Model
	if model == "" {
		model = cfg.Agents.DefaultModel
	}

	if apiKey == "" {
		for _, envKey := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "DEEPSEEK_API_KEY"} {
			if v := os.Getenv(envKey); v != "" {
				apiKey = v
				break
			}
		}
	}

	// OpenRouter keys identify themselves; route there if no base is set.
	if apiBase == "" && strings.HasPrefix(apiKey, "sk-or-") {
		apiBase = "https://openrouter.ai/api/v1"
	}

	return providers.NewOpenAIProvider(apiKey, apiBase, model)
}

// agentsDir resolves the parent directory for agent workspaces.
func agentsDir(cfg config.Config) string {
	if cfg.Agents.Dir != "" {
		return utils.WorkspacePath(cfg.Agents.Dir)
	}
	dir := filepath.Join(utils.DataPath(), "agents")
	os.MkdirAll(dir, 0o755)
	return dir
}

// runtime bundles the components shared by the gateway and agent commands.
type runtime struct {
	Config   config.Config
	Registry *registry.Registry
	Engine   *tools.Engine
	Sessions *session.Manager
	Guard    *contextguard.Guard
	Manager  *manager.InstanceManager
	Deps     agent.Deps
}

// buildRuntime wires registry, tool engine, sessions, context guard and the
// instance manager from a loaded config. Deps.Bus and Deps.Scheduler start
// nil; the gateway command fills them before first use.
func buildRuntime(cfg config.Config) (*runtime, error) {
	reg, err := registry.New(config.AgentsPath(cfg), registry.Defaults{
		WorkspaceDir:  agentsDir(cfg),
		Model:         cfg.Agents.DefaultModel,
		Temperature:   cfg.Agents.Temperature,
		MaxTokens:     cfg.Agents.MaxTokens,
		MaxIterations: cfg.Agents.MaxIterations,
		MemoryWindow:  cfg.Agents.MemoryWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("loading agent registry: %w", err)
	}

	policy := tools.Policy{
		DenyPatterns: cfg.Tools.Exec.DenyPatterns,
		Timeout:      time.Duration(cfg.Tools.Exec.Timeout) * time.Second,
	}
	if len(policy.DenyPatterns) == 0 {
		policy.DenyPatterns = tools.DefaultDenyPatterns
	}
	if cfg.Tools.RestrictToWorkspace {
		policy.WorkspaceRoot = agentsDir(cfg)
	}
	engine, err := tools.NewEngine(policy)
	if err != nil {
		return nil, fmt.Errorf("building tool engine: %w", err)
	}

	sessions := session.NewManager(utils.DataPath())

	guardCfg := contextguard.DefaultConfig()
	if cfg.Agents.ConsolidateRatio > 0 {
		guardCfg.ConsolidateRatio = cfg.Agents.ConsolidateRatio
	}
	guard := contextguard.NewGuard(guardCfg)

	deps := agent.Deps{
		Engine:    engine,
		Sessions:  sessions,
		Guard:     guard,
		WebAPIKey: cfg.WebSearch.APIKey,
	}

	rt := &runtime{
		Config:   cfg,
		Registry: reg,
		Engine:   engine,
		Sessions: sessions,
		Guard:    guard,
		Deps:     deps,
	}
	return rt, nil
}

// finish builds the instance manager once Deps is fully populated.
func (rt *runtime) finish(provider providers.Provider) {
	rt.Manager = manager.New(rt.Registry, provider, rt.Deps)
}
