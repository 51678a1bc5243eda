package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "crewgate",
	Short: "crewgate is a multi-agent chat gateway",
	Long:  "crewgate routes chat messages to tool-calling agents, one gateway for every channel.",
}

// Execute runs the root command.
func Execute() {
	// Credentials may live in a local .env; a missing file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
