package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehq/stagehand"
	"github.com/stagehq/stagehand/pkg/adapters/file"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a measurement plan against a rig",
	Long: `Loads the rig and plan documents, connects the declared instruments, and
walks the sweep grid. Each sample is printed to stdout as one JSON line, in
acquisition order. Interrupting the run (Ctrl-C) cancels it at the next step
boundary; the in-flight step always drains first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rigPath, _ := cmd.Flags().GetString("rig")
		planPath, _ := cmd.Flags().GetString("plan")
		outDir, _ := cmd.Flags().GetString("out")
		retries, _ := cmd.Flags().GetInt("retries")
		backoff, _ := cmd.Flags().GetDuration("backoff")

		logger := newLogger(cmd)

		opts := []stagehand.Option{
			stagehand.WithLogger(logger),
			stagehand.WithRetry(retries, backoff),
		}
		if outDir != "" {
			store, err := file.NewStore(outDir)
			if err != nil {
				return err
			}
			opts = append(opts, stagehand.WithRunStore(store))
		}
		stage := stagehand.New(opts...)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := stage.LoadRig(ctx, rigPath); err != nil {
			return fmt.Errorf("load rig: %w", err)
		}
		defer func() {
			if err := stage.Close(context.Background()); err != nil {
				logger.Warn("rig teardown incomplete", "err", err)
			}
		}()

		plan, err := stage.LoadPlan(planPath)
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		sink := ports.SinkFunc(func(ctx context.Context, sample domain.Sample) error {
			return enc.Encode(sample)
		})

		result := stage.Run(ctx, *plan, sink)

		logger.Info("run finished",
			"run_id", result.ID,
			"state", result.State,
			"samples", len(result.Samples),
			"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
		)
		if result.State != domain.RunCompleted {
			return fmt.Errorf("run %s %s: %s", result.ID, result.State, result.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("rig", "rig.yaml", "Path to the rig document")
	runCmd.Flags().String("plan", "plan.yaml", "Path to the plan document")
	runCmd.Flags().String("out", "", "Directory to persist run results into (empty = stdout only)")
	runCmd.Flags().Int("retries", 3, "Retry bound for transient failures")
	runCmd.Flags().Duration("backoff", 100*time.Millisecond, "Initial retry backoff (doubles per attempt)")
	_ = runCmd.MarkFlagRequired("plan")
}
