package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adyngom/nano-agent/internal/config"
	"github.com/adyngom/nano-agent/internal/log"
	internal_storage "github.com/adyngom/nano-agent/internal/storage"
	"github.com/adyngom/nano-agent/pkg/engine"
	"github.com/adyngom/nano-agent/pkg/report"
	"github.com/adyngom/nano-agent/pkg/storage"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "Postgres connection string for the checkpoint store")
	rootCmd.PersistentFlags().String("store", "./checkpoints", "Filesystem root for the checkpoint store (ignored when --db is set)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow definition with checkpointing and recovery",
		Run: func(cmd *cobra.Command, args []string) {
			file, _ := cmd.Flags().GetString("file")
			maxRetries, _ := cmd.Flags().GetInt("max-retries")
			markdown, _ := cmd.Flags().GetBool("markdown")
			resume, _ := cmd.Flags().GetBool("resume")

			def := loadDefinition(file)
			store := initStore(cmd)
			defer store.Close()

			wf := def.Workflow()
			eng := engine.NewEngine(wf, store, log.GetLogger(),
				engine.WithMaxRetries(maxRetries),
				engine.WithFallbackExecutors(def.Fallbacks))
			for name, spec := range def.Executors {
				if err := eng.RegisterExecutor(name, config.SimulatedExecutor(name, spec)); err != nil {
					fail("Failed to register executor '%s': %v", name, err)
				}
			}

			if resume {
				cp, err := eng.RestoreFromLatest()
				if err != nil {
					fail("Failed to resume workflow '%s': %v", wf.ID, err)
				}
				fmt.Fprintf(os.Stdout, "Resumed workflow '%s' from checkpoint %d\n", wf.ID, cp.StepIndex)
			}

			status, err := eng.Run(context.Background())
			r := report.Generate(eng.Snapshot(), eng.RecoveryEvents())
			if markdown {
				fmt.Fprint(os.Stdout, r.RenderMarkdown())
			} else {
				fmt.Fprint(os.Stdout, r.RenderText())
			}
			if err != nil {
				log.GetLogger().Errorf("Workflow run failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "\nWorkflow finished with status %s\n", status)
		},
	}
	runCmd.Flags().String("file", "", "Workflow definition YAML file")
	runCmd.Flags().Int("max-retries", engine.DefaultMaxRetries, "Per-step retry ceiling")
	runCmd.Flags().Bool("markdown", false, "Render the report as markdown")
	runCmd.Flags().Bool("resume", false, "Restore state from the latest checkpoint before running")
	_ = runCmd.MarkFlagRequired("file")

	checkpointsCmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List stored checkpoints for a workflow",
		Run: func(cmd *cobra.Command, args []string) {
			workflowID, _ := cmd.Flags().GetString("workflow")
			store := initStore(cmd)
			defer store.Close()

			indices, err := store.List(workflowID)
			if err != nil {
				fail("Failed to list checkpoints: %v", err)
			}
			if len(indices) == 0 {
				fmt.Fprintf(os.Stdout, "No checkpoints found for workflow '%s'.\n", workflowID)
				return
			}
			fmt.Fprintf(os.Stdout, "Checkpoints for workflow '%s':\n", workflowID)
			for _, idx := range indices {
				cp, err := store.Load(workflowID, idx)
				if err != nil {
					fmt.Fprintf(os.Stdout, "- step %d: unreadable (%v)\n", idx, err)
					continue
				}
				marker := ""
				if cp.IntegrityWarning {
					marker = " [integrity warning]"
				}
				fmt.Fprintf(os.Stdout, "- step %d: %d completed step(s), %d artifact(s), digest %s%s\n",
					idx, len(cp.CompletedIndices), len(cp.Artifacts), cp.IntegrityDigest, marker)
			}
		},
	}
	checkpointsCmd.Flags().String("workflow", "", "Workflow ID")
	_ = checkpointsCmd.MarkFlagRequired("workflow")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored checkpoint as JSON",
		Run: func(cmd *cobra.Command, args []string) {
			workflowID, _ := cmd.Flags().GetString("workflow")
			step, _ := cmd.Flags().GetInt("step")
			store := initStore(cmd)
			defer store.Close()

			cp, err := store.Load(workflowID, step)
			if err != nil {
				fail("Failed to load checkpoint: %v", err)
			}
			if cp.IntegrityWarning {
				log.GetLogger().Warnf("Checkpoint %d for workflow '%s' failed integrity verification", step, workflowID)
			}
			out, err := json.MarshalIndent(cp, "", "  ")
			if err != nil {
				fail("Failed to render checkpoint: %v", err)
			}
			fmt.Fprintln(os.Stdout, string(out))
		},
	}
	showCmd.Flags().String("workflow", "", "Workflow ID")
	showCmd.Flags().Int("step", 0, "Step index")
	_ = showCmd.MarkFlagRequired("workflow")
	_ = showCmd.MarkFlagRequired("step")

	rootCmd.AddCommand(runCmd, checkpointsCmd, showCmd)
}

func loadDefinition(file string) *config.Definition {
	def, err := config.Load(file)
	if err != nil {
		fail("Failed to load workflow definition: %v", err)
	}
	return def
}

func initStore(cmd *cobra.Command) storage.Store {
	dbConnStr, _ := cmd.Flags().GetString("db")
	fileRoot, _ := cmd.Flags().GetString("store")
	store, err := internal_storage.InitStore(dbConnStr, fileRoot)
	if err != nil {
		fail("Failed to initialize store: %v", err)
	}
	return store
}

func fail(format string, args ...interface{}) {
	log.GetLogger().Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
