package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/config"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to an agent directly from the terminal",
	RunE:  runAgent,
}

var (
	agentMessage   string
	agentSessionID string
)

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Message to send to the agent")
	agentCmd.Flags().StringVarP(&agentSessionID, "session", "s", "cli:direct", "Session key (channel:chat_id)")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	rt.Deps.Bus = bus.New()
	rt.finish(makeProvider(cfg))
	defer rt.Manager.Shutdown()

	// Session bindings apply here too, so a bound CLI session reaches
	// the same agent it would via a channel.
	loop, err := rt.Manager.ForSession(agentSessionID)
	if err != nil {
		return err
	}

	if agentMessage != "" {
		resp, err := loop.ProcessDirect(context.Background(), agentMessage, agentSessionID)
		if err != nil {
			return err
		}
		fmt.Println(resp)
		return nil
	}

	// Interactive REPL mode
	fmt.Printf("crewgate interactive mode, agent %q (type 'exit' or Ctrl+C to quit)\n\n", loop.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nGoodbye!")
		cancel()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	exitCommands := map[string]bool{
		"exit": true, "quit": true, "/exit": true, "/quit": true, ":q": true,
	}

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitCommands[strings.ToLower(input)] {
			fmt.Println("Goodbye!")
			break
		}

		resp, err := loop.ProcessDirect(ctx, input, agentSessionID)
		if err != nil {
			log.Printf("Error: %v", err)
			continue
		}
		fmt.Printf("\n%s\n%s\n\n", loop.Name(), resp)
	}

	return nil
}
