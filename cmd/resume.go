package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/evostrat/internal/fit"
	"github.com/cwbudde/evostrat/internal/opt"
	"github.com/cwbudde/evostrat/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir string
	resumeIters   int
	resumeSeed    int64
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume an optimization from its checkpoint",
	Long: `Loads the checkpoint of a previous job and continues the optimization
from its best-known position. The covariance restarts at the configured
initial radius; the objective, dimensionality and direction are taken from
the checkpoint and cannot change across a resume.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	resumeCmd.Flags().IntVar(&resumeIters, "iters", 0, "Iteration budget for the resumed run (0 = remaining budget from the checkpoint)")
	resumeCmd.Flags().Int64Var(&resumeSeed, "seed", 0, "Random seed for the resumed run (0 = checkpoint seed + 1)")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint is not usable: %w", err)
	}

	iters := resumeIters
	if iters == 0 {
		iters = checkpoint.Config.MaxIterations - checkpoint.Iteration
		if iters <= 0 {
			iters = checkpoint.Config.MaxIterations
		}
	}

	// Reusing the original seed would replay the original trajectory from a
	// different start point; derive a fresh one by default.
	seed := resumeSeed
	if seed == 0 {
		seed = checkpoint.Config.Seed + 1
	}

	cfg := fit.RunConfig{
		Function:       checkpoint.Config.Function,
		Dim:            checkpoint.Config.Dim,
		Start:          checkpoint.BestParams,
		InitialRadius:  checkpoint.Config.InitialRadius,
		GrowthFactor:   checkpoint.Config.GrowthFactor,
		ShrinkFactor:   checkpoint.Config.ShrinkFactor,
		Epsilon:        checkpoint.Config.Epsilon,
		MaxIterations:  iters,
		Seed:           seed,
		Maximize:       checkpoint.Config.Maximize,
		StallPatience:  checkpoint.Config.StallPatience,
		StallThreshold: checkpoint.Config.StallThreshold,
	}

	slog.Info("Resuming job",
		"job_id", jobID,
		"function", cfg.Function,
		"from_iteration", checkpoint.Iteration,
		"from_cost", checkpoint.BestCost,
		"iterations", iters,
	)

	trace, err := store.NewTraceWriter(resumeDataDir, jobID, true)
	if err != nil {
		slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		trace = nil
	} else {
		defer trace.Close()
	}

	observer := func(p opt.Progress) {
		if trace != nil {
			trace.Write(store.TraceEntry{
				Iteration:      checkpoint.Iteration + p.Iteration,
				Cost:           p.Cost,
				CovarianceNorm: p.CovarianceNorm,
				Accepted:       p.Accepted,
				Timestamp:      time.Now(),
			})
		}
	}

	result, err := fit.Run(cfg, observer)
	if err != nil {
		return err
	}

	totalIterations := checkpoint.Iteration + result.Iterations
	updated := store.NewCheckpoint(
		jobID,
		result.BestParams,
		result.BestCost,
		checkpoint.InitialCost,
		totalIterations,
		0, // covariance is not carried across resumes
		checkpoint.Config,
	)
	if err := checkpointStore.SaveCheckpoint(jobID, updated); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	fmt.Printf("Resumed %s: cost %.6g -> %.6g over %d more iterations (total %d)\n",
		jobID, checkpoint.BestCost, result.BestCost, result.Iterations, totalIterations)

	return nil
}
