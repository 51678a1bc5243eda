package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crewgate/crewgate/internal/config"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and manage agent definitions and session bindings",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured agents and session bindings",
	RunE:  runAgentsList,
}

var agentsBindCmd = &cobra.Command{
	Use:   "bind <session-key> <agent>",
	Short: "Route a session (channel:chat_id) to a named agent",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentsBind,
}

var agentsUnbindCmd = &cobra.Command{
	Use:   "unbind <session-key>",
	Short: "Remove a session binding; the session falls back to the default agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsUnbind,
}

func init() {
	agentsCmd.AddCommand(agentsListCmd, agentsBindCmd, agentsUnbindCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	defaultName := rt.Registry.DefaultAgent()
	fmt.Println("Agents:")
	for _, spec := range rt.Registry.ListAgents() {
		marker := " "
		if spec.Name == defaultName {
			marker = "*"
		}
		fmt.Printf("  %s %-16s model=%s workspace=%s\n", marker, spec.Name, spec.Model, spec.Workspace)
		if spec.Description != "" {
			fmt.Printf("      %s\n", spec.Description)
		}
	}

	bindings := rt.Registry.ListBindings()
	if len(bindings) == 0 {
		fmt.Println("\nBindings: none (all sessions use the default agent)")
		return nil
	}
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("\nBindings:")
	for _, k := range keys {
		fmt.Printf("  %s -> %s\n", k, bindings[k])
	}
	return nil
}

func runAgentsBind(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	if err := rt.Registry.Bind(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Bound %s -> %s\n", args[0], args[1])
	return nil
}

func runAgentsUnbind(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	if err := rt.Registry.Unbind(args[0]); err != nil {
		return err
	}
	fmt.Printf("Unbound %s\n", args[0])
	return nil
}
