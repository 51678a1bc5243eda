package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewgate/crewgate/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show crewgate configuration status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	fmt.Println("crewgate status")
	fmt.Println()
	fmt.Printf("Config:     %s\n", config.Path())
	fmt.Printf("Agents:     %s\n", config.AgentsPath(cfg))
	fmt.Printf("Model:      %s\n", makeProvider(cfg).DefaultModel())
	fmt.Printf("Default:    %s\n", rt.Registry.DefaultAgent())
	fmt.Printf("Defined:    %d agents, %d bindings\n",
		len(rt.Registry.ListAgents()), len(rt.Registry.ListBindings()))

	fmt.Println("\nChannels:")
	if tg := cfg.Channel.Telegram; tg != nil && tg.Token != "" {
		fmt.Println("  telegram:  configured")
	}
	if ws := cfg.Channel.WebSocket; ws != nil && ws.Listen != "" {
		fmt.Printf("  websocket: %s\n", ws.Listen)
	}
	if (cfg.Channel.Telegram == nil || cfg.Channel.Telegram.Token == "") &&
		(cfg.Channel.WebSocket == nil || cfg.Channel.WebSocket.Listen == "") {
		fmt.Println("  none configured")
	}

	if cfg.Redis.URL != "" {
		fmt.Printf("\nRedis:      %s\n", cfg.Redis.URL)
	}
	return nil
}
