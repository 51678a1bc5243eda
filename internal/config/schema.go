// Package config handles loading, saving, and schema definition for the
// process-level configuration. Agent definitions and session bindings live
// in the separate agents.yaml handled by internal/registry.
package config

// Config is the top-level crewgate configuration, stored as camelCase JSON.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Channel   ChannelConfig   `json:"channel"`
	Agents    AgentsConfig    `json:"agents"`
	Tools     ToolsConfig     `json:"tools"`
	Gateway   GatewayConfig   `json:"gateway"`
	WebSearch WebSearchConfig `json:"webSearch"`
	Redis     RedisConfig     `json:"redis"`
}

// ProviderConfig holds LLM backend credentials.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ChannelConfig holds per-channel settings.
type ChannelConfig struct {
	Telegram  *TelegramConfig  `json:"telegram,omitempty"`
	WebSocket *WebSocketConfig `json:"websocket,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// WebSocketConfig holds the local WebSocket gateway channel settings.
type WebSocketConfig struct {
	Listen    string   `json:"listen,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// AgentsConfig holds shared agent settings and the registry file location.
type AgentsConfig struct {
	// File is the hot-reloadable agent/binding definition file. Empty
	// resolves to agents.yaml next to the config file.
	File string `json:"file,omitempty"`

	// Dir is the parent directory for agent workspaces.
	Dir string `json:"dir,omitempty"`

	DefaultModel  string  `json:"defaultModel,omitempty"`
	MaxTokens     int     `json:"maxTokens,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	MaxIterations int     `json:"maxIterations,omitempty"`
	MemoryWindow  int     `json:"memoryWindow,omitempty"`

	// ConsolidateRatio is the fraction of the model context window at
	// which older session history is summarized into memory.
	ConsolidateRatio float64 `json:"consolidateRatio,omitempty"`
}

// ToolsConfig holds tool sandbox settings.
type ToolsConfig struct {
	RestrictToWorkspace bool       `json:"restrictToWorkspace,omitempty"`
	Exec                ExecConfig `json:"exec,omitempty"`
}

// ExecConfig holds shell execution settings.
type ExecConfig struct {
	DenyPatterns []string `json:"denyPatterns,omitempty"`
	Timeout      int      `json:"timeout,omitempty"` // seconds
}

// GatewayConfig holds gateway runtime settings.
type GatewayConfig struct {
	CollectWindowMS int    `json:"collectWindowMs,omitempty"`
	LaneMode        string `json:"laneMode,omitempty"` // followup|collect|interrupt
}

// WebSearchConfig holds web search settings.
type WebSearchConfig struct {
	APIKey string `json:"apiKey,omitempty"`
}

// RedisConfig enables the optional cross-process session cache.
type RedisConfig struct {
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Agents: AgentsConfig{
			DefaultModel:     "gpt-4o-mini",
			MaxTokens:        4096,
			Temperature:      0.7,
			MaxIterations:    25,
			MemoryWindow:     50,
			ConsolidateRatio: 0.8,
		},
		Tools: ToolsConfig{
			RestrictToWorkspace: true,
			Exec: ExecConfig{
				Timeout: 60,
			},
		},
		Gateway: GatewayConfig{
			LaneMode: "followup",
		},
	}
}
