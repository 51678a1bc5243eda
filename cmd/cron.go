package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crewgate/crewgate/internal/config"
	"github.com/crewgate/crewgate/internal/cron"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect scheduled jobs",
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted scheduled jobs",
	RunE:  runCronList,
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Delete a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronRemove,
}

func init() {
	cronCmd.AddCommand(cronListCmd, cronRemoveCmd)
	rootCmd.AddCommand(cronCmd)
}

func cronStorePath() string {
	return filepath.Join(config.Dir(), "cron", "jobs.yaml")
}

func runCronList(cmd *cobra.Command, args []string) error {
	jobs, err := cron.NewFileStore(cronStorePath()).LoadAll()
	if err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No scheduled jobs.")
		return nil
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	for _, job := range jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s  [%s %s] %s -> %s:%s (%s, runs=%d)\n",
			job.ID, job.Type, job.Schedule, job.Name, job.Channel, job.ChatID, state, job.RunCount)
	}
	return nil
}

func runCronRemove(cmd *cobra.Command, args []string) error {
	if err := cron.NewFileStore(cronStorePath()).Delete(args[0]); err != nil {
		return fmt.Errorf("removing job: %w", err)
	}
	fmt.Printf("Removed job %s\n", args[0])
	return nil
}
