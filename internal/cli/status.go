package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wunderlabs-dev/wunderunner/internal/config"
	"github.com/wunderlabs-dev/wunderunner/internal/db"
	"github.com/wunderlabs-dev/wunderunner/internal/history"
	"github.com/wunderlabs-dev/wunderunner/internal/memory"
	"github.com/wunderlabs-dev/wunderunner/internal/store"
)

func resolveProject(args []string) (string, error) {
	projectPath := "."
	if len(args) > 0 {
		projectPath = args[0]
	}
	return filepath.Abs(projectPath)
}

var statusCmd = &cobra.Command{
	Use:   "status [project-path]",
	Short: "Show recent workflow events for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abs, err := resolveProject(args)
		if err != nil {
			return err
		}
		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}

		dbPath := cfg.DBPath
		if dbPath == "" {
			if dbPath, err = db.DefaultDBPath(); err != nil {
				return err
			}
		}
		database, err := db.Open(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return err
		}

		events, err := database.GetWorkflowHistory(abs)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("no workflow events recorded for", abs)
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-18s", e.Timestamp, e.Event)
			if e.Phase != "" {
				line += "  " + e.Phase
			}
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [project-path]",
	Short: "Show fix attempts and active constraints for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abs, err := resolveProject(args)
		if err != nil {
			return err
		}

		h, err := history.NewStore(store.NewStore(abs)).Load()
		if err != nil {
			return err
		}

		fmt.Printf("project: %s\n", h.Project)
		fmt.Printf("fix attempts: %d\n", len(h.Attempts))
		for _, a := range h.Attempts {
			outcome := "failed"
			if a.Success {
				outcome = "succeeded"
			}
			fmt.Printf("  attempt %d [%s] %s: %s (%s)\n", a.Attempt, a.Phase, a.ErrorKind, a.ErrorMessage, outcome)
		}
		fmt.Printf("constraints: %d\n", len(h.Constraints))
		for _, c := range h.Constraints {
			fmt.Printf("  [%s, %d build(s)] %s\n", c.Status, c.SuccessCount, c.Rule)
		}
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context [project-path]",
	Short: "Show the project's deployment memory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abs, err := resolveProject(args)
		if err != nil {
			return err
		}

		pc, err := memory.NewStore(store.NewStore(abs), nil, 0).Load()
		if err != nil {
			return err
		}

		if pc.Summary != "" {
			fmt.Printf("summary:\n%s\n\n", pc.Summary)
		}
		fmt.Printf("regression violations: %d\n", pc.ViolationCount)
		fmt.Printf("entries since summary: %d\n", pc.EntriesSinceSummary)
		for _, e := range pc.Entries {
			fmt.Fprintf(os.Stdout, "  %s [%s] %s\n", e.CreatedAt, e.Type, e.Explanation)
		}
		return nil
	},
}
