package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/config"
	"github.com/wunderlabs-dev/wunderunner/internal/db"
	"github.com/wunderlabs-dev/wunderunner/internal/docker"
	"github.com/wunderlabs-dev/wunderunner/internal/genai"
	"github.com/wunderlabs-dev/wunderunner/internal/history"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
	"github.com/wunderlabs-dev/wunderunner/internal/memory"
	"github.com/wunderlabs-dev/wunderunner/internal/regression"
	"github.com/wunderlabs-dev/wunderunner/internal/store"
	"github.com/wunderlabs-dev/wunderunner/internal/validate"
	"github.com/wunderlabs-dev/wunderunner/internal/workflow"
)

var runRebuild bool

var runCmd = &cobra.Command{
	Use:   "run [project-path]",
	Short: "Generate, build, and health-check deployment artifacts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath := "."
		if len(args) > 0 {
			projectPath = args[0]
		}
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return fmt.Errorf("resolve project path: %w", err)
		}

		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}

		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath, err = db.DefaultDBPath()
			if err != nil {
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

		client, err := genai.NewClient()
		if err != nil {
			return err
		}

		files := store.NewStore(abs)
		histories := history.NewStore(files)
		contexts := memory.NewStore(files, genai.NewSummarizer(client), cfg.Workflow.SummaryThreshold)

		analyzer := analyze.NewCachedAnalyzer(analyze.NewFanOut(analyze.DefaultSubTasks()), files)
		validator := validate.NewValidator(genai.NewGrader(client))
		guard := regression.NewGuard(genai.NewComparator(client), contexts)
		guard.SetProgress(os.Stderr)

		runtime := docker.NewClient(&docker.ExecRunner{})
		runtime.SetPollInterval(cfg.PollInterval())
		runtime.SetBuildTimeout(cfg.BuildTimeout())

		engine := workflow.NewEngine(
			analyzer,
			genai.NewDockerfileGenerator(client),
			genai.NewComposeGenerator(client),
			genai.NewFixer(client),
			validator,
			guard,
			runtime,
			NewConsolePrompt(os.Stdin, os.Stderr),
			histories,
			contexts,
			files,
			database,
			cfg,
		)
		engine.SetProgress(os.Stderr)

		if err := engine.Run(cmd.Context(), abs, runRebuild); err != nil {
			if errors.Is(err, learning.ErrHintDeclined) {
				return fmt.Errorf("run cancelled: %w", err)
			}
			return err
		}
		fmt.Fprintf(os.Stdout, "deployment for %s is up and healthy\n", abs)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runRebuild, "rebuild", false, "bypass the cached analysis and re-analyze the project")
}
