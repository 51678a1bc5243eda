package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Dir returns the crewgate configuration directory (~/.crewgate).
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crewgate")
}

// Path returns the default config file path (~/.crewgate/config.json).
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// AgentsPath resolves the agents.yaml location for a loaded config.
func AgentsPath(cfg Config) string {
	if cfg.Agents.File != "" {
		return cfg.Agents.File
	}
	return filepath.Join(Dir(), "agents.yaml")
}

// Load reads configuration from a JSON file. An empty path means the
// default location; a missing file yields DefaultConfig.
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, err
	}

	cfg := DefaultConfig() // start from defaults so omitted fields keep them
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// Save writes configuration as indented JSON.
func Save(cfg Config, path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
