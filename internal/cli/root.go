package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "wunderunner",
	Short: "Self-repairing container deployment generator",
	Long: `wunderunner analyzes a project, generates a Dockerfile (and compose file for
multi-service projects), then builds, starts, and health-checks the result,
repairing failures until the deployment is up or a human declines to help.

Per-project state lives under <project>/.wunderunner/ (JSON); the event log
lives under ~/.wunderunner/ (SQLite).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(versionCmd)
}
