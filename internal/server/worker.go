package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/evostrat/internal/fit"
	"github.com/cwbudde/evostrat/internal/opt"
	"github.com/cwbudde/evostrat/internal/store"
)

// runJob executes an optimization job in the background. When a checkpoint
// store is configured and the job asks for a checkpoint interval, periodic
// checkpoints and a JSONL trace are written under the data directory.
// resumeFrom, when not nil, seeds the run from a previous checkpoint.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, dataDir, jobID string, resumeFrom *store.Checkpoint) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	cfg := runConfigFromJob(job.Config)
	if resumeFrom != nil {
		if err := resumeFrom.IsCompatible(job.Config); err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		// Restart from the checkpointed best position with the remaining
		// iteration budget; the covariance starts fresh at the configured
		// radius.
		cfg.Start = resumeFrom.BestParams
		remaining := cfg.MaxIterations - resumeFrom.Iteration
		if remaining <= 0 {
			remaining = cfg.MaxIterations
		}
		cfg.MaxIterations = remaining
	}

	runner, err := fit.NewRunner(cfg)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.stop = runner.Stop
		// A stop requested while the job was still pending had no hook to
		// call; honor it now.
		if j.stopRequested {
			runner.Stop()
		}
	}); err != nil {
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"function", cfg.Function,
		"dim", cfg.Dim,
		"resumed", resumeFrom != nil,
	)

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, resumeFrom != nil)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
			trace = nil
		} else {
			defer trace.Close()
		}
	}

	// Propagate context cancellation as a cooperative stop.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			runner.Stop()
		case <-watchDone:
		}
	}()

	// Checkpoint ticker, enabled per job config.
	checkpointDone := make(chan struct{})
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(jm, checkpointStore, jobID, job.Config.CheckpointInterval, checkpointDone)
	}

	// Progress broadcast ticker, throttled to two updates per second.
	progressDone := make(chan struct{})
	go monitorProgress(jm, jobID, progressDone)

	iterationOffset := 0
	if resumeFrom != nil {
		iterationOffset = resumeFrom.Iteration
	}

	observer := func(p opt.Progress) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = iterationOffset + p.Iteration
			j.BestCost = p.Cost
			j.BestParams = p.Position
			j.CovarianceNorm = p.CovarianceNorm
		})
		if trace != nil {
			trace.Write(store.TraceEntry{
				Iteration:      iterationOffset + p.Iteration,
				Cost:           p.Cost,
				CovarianceNorm: p.CovarianceNorm,
				Accepted:       p.Accepted,
				Timestamp:      time.Now(),
			})
		}
	}

	start := time.Now()
	result, err := runner.Run(observer)
	close(progressDone)
	close(checkpointDone)

	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	if trace != nil {
		if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
		}
	}

	// A stop request (client or context) results in a cancelled job; the
	// best-so-far results are still recorded.
	finalState := StateCompleted
	if ctx.Err() != nil {
		finalState = StateCancelled
	} else if j, ok := jm.GetJob(jobID); ok && j.stopRequested {
		finalState = StateCancelled
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = finalState
		j.BestParams = result.BestParams
		j.BestCost = result.BestCost
		if resumeFrom == nil {
			j.InitialCost = result.InitialCost
		} else {
			j.InitialCost = resumeFrom.InitialCost
		}
		j.Iterations = iterationOffset + result.Iterations
		j.Converged = result.Converged
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	if checkpointStore != nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Warn("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Job finished",
		"job_id", jobID,
		"state", finalState,
		"elapsed", time.Since(start),
		"initial_cost", result.InitialCost,
		"best_cost", result.BestCost,
		"iterations", result.Iterations,
		"converged", result.Converged,
	)

	broadcastJob(jm, jobID)
	return nil
}

// monitorProgress periodically broadcasts the job state to SSE clients
// while the run is in flight.
func monitorProgress(jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			broadcastJob(jm, jobID)
		}
	}
}

// monitorCheckpoints periodically saves checkpoints during optimization.
func monitorCheckpoints(jm *JobManager, checkpointStore store.Store, jobID string, intervalSeconds int, done chan struct{}) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint persists the current best state of a job.
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if len(job.BestParams) == 0 {
		slog.Debug("Skipping checkpoint, no best params yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestParams,
		job.BestCost,
		job.InitialCost,
		job.Iterations,
		job.CovarianceNorm,
		job.Config,
	)
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_cost", job.BestCost,
	)
	return nil
}

func broadcastJob(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:          job.ID,
		State:          job.State,
		Iteration:      job.Iterations,
		BestCost:       job.BestCost,
		CovarianceNorm: job.CovarianceNorm,
		Converged:      job.Converged,
		Timestamp:      time.Now(),
	})
}

func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastJob(jm, jobID)
}

// runConfigFromJob converts the persisted job config to a run config.
func runConfigFromJob(c JobConfig) fit.RunConfig {
	return fit.RunConfig{
		Function:       c.Function,
		Dim:            c.Dim,
		Start:          c.Start,
		InitialRadius:  c.InitialRadius,
		GrowthFactor:   c.GrowthFactor,
		ShrinkFactor:   c.ShrinkFactor,
		Epsilon:        c.Epsilon,
		MaxIterations:  c.MaxIterations,
		Seed:           c.Seed,
		Maximize:       c.Maximize,
		StallPatience:  c.StallPatience,
		StallThreshold: c.StallThreshold,
	}
}
