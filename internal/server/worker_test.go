package server

import (
	"context"
	"testing"
	"time"

	"github.com/cwbudde/evostrat/internal/store"
)

func sphereJobConfig() JobConfig {
	return JobConfig{
		Function:      "sphere",
		Dim:           2,
		Start:         []float64{10, 10},
		InitialRadius: 1.0,
		Epsilon:       1e-6,
		MaxIterations: 5000,
		Seed:          42,
	}
}

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(sphereJobConfig())

	err := runJob(context.Background(), jm, nil, "", job.ID, nil)
	if err != nil {
		t.Errorf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}

	if updated.InitialCost != 200 {
		t.Errorf("Expected initial cost 200, got %g", updated.InitialCost)
	}

	if updated.BestCost >= updated.InitialCost {
		t.Errorf("Best cost %g should improve on initial cost %g", updated.BestCost, updated.InitialCost)
	}

	if len(updated.BestParams) != 2 {
		t.Errorf("Expected 2 params, got %d", len(updated.BestParams))
	}

	if updated.Iterations == 0 {
		t.Error("Iterations should be tracked")
	}

	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_InvalidFunction(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Function:      "nonexistent",
		Dim:           2,
		InitialRadius: 1.0,
		MaxIterations: 10,
	})

	err := runJob(context.Background(), jm, nil, "", job.ID, nil)
	if err == nil {
		t.Error("runJob should fail with unknown function")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}

	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_StopRequest(t *testing.T) {
	jm := NewJobManager()
	cfg := sphereJobConfig()
	cfg.Dim = 20 // long contraction horizon, see TestRunJob_ContextCancellation
	cfg.Start = nil
	cfg.Epsilon = 1e-300
	cfg.MaxIterations = 50_000_000
	job := jm.CreateJob(cfg)

	done := make(chan error)
	go func() {
		done <- runJob(context.Background(), jm, nil, "", job.ID, nil)
	}()

	// Wait for the worker to install the stop hook, then request a stop.
	deadline := time.After(5 * time.Second)
	for {
		if err := jm.StopJob(job.ID); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Job never became stoppable")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Stopped run should not report an error: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_ContextCancellation(t *testing.T) {
	jm := NewJobManager()
	// A high-dimensional run keeps the covariance contraction horizon far
	// beyond the cancellation latency: every direction must shrink to the
	// epsilon floor independently, so the run cannot finish on its own
	// before the observed-progress gate below fires.
	cfg := JobConfig{
		Function:      "sphere",
		Dim:           20,
		InitialRadius: 1.0,
		Epsilon:       1e-300,
		MaxIterations: 50_000_000,
		Seed:          42,
	}
	job := jm.CreateJob(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- runJob(ctx, jm, nil, "", job.ID, nil)
	}()

	// Cancel only once the run is observably in flight.
	deadline := time.After(5 * time.Second)
	for {
		if j, ok := jm.GetJob(job.ID); ok && j.State == StateRunning && j.Iterations > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Job never started iterating")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Cancelled run should not report an error: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_WritesCheckpointAndTrace(t *testing.T) {
	dataDir := t.TempDir()
	fs, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(sphereJobConfig())

	if err := runJob(context.Background(), jm, fs, dataDir, job.ID, nil); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	checkpoint, err := fs.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("Final checkpoint should exist: %v", err)
	}
	if checkpoint.Iteration == 0 {
		t.Error("Checkpoint should record the final iteration")
	}
	if len(checkpoint.BestParams) != 2 {
		t.Errorf("Expected 2 params in checkpoint, got %d", len(checkpoint.BestParams))
	}

	reader, err := store.NewTraceReader(dataDir, job.ID)
	if err != nil {
		t.Fatalf("Trace should exist: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Trace should be readable: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("Trace should contain entries")
	}
	if entries[len(entries)-1].Iteration != checkpoint.Iteration {
		t.Errorf("Last trace iteration %d should match checkpoint iteration %d",
			entries[len(entries)-1].Iteration, checkpoint.Iteration)
	}
}

func TestRunJob_Resume(t *testing.T) {
	dataDir := t.TempDir()
	fs, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	jm := NewJobManager()
	cfg := sphereJobConfig()
	job := jm.CreateJob(cfg)

	if err := runJob(context.Background(), jm, fs, dataDir, job.ID, nil); err != nil {
		t.Fatalf("Initial run should succeed: %v", err)
	}

	checkpoint, err := fs.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("Checkpoint should exist: %v", err)
	}

	resumed, err := jm.CreateJobWithID(job.ID, cfg)
	if err != nil {
		t.Fatalf("Resume job creation should succeed: %v", err)
	}

	if err := runJob(context.Background(), jm, fs, dataDir, resumed.ID, checkpoint); err != nil {
		t.Fatalf("Resumed run should succeed: %v", err)
	}

	final, _ := jm.GetJob(resumed.ID)
	if final.State != StateCompleted {
		t.Errorf("Resumed job should complete, got %s", final.State)
	}
	if final.BestCost > checkpoint.BestCost {
		t.Errorf("Resumed best cost %g should not regress past checkpoint %g",
			final.BestCost, checkpoint.BestCost)
	}
	if final.Iterations < checkpoint.Iteration {
		t.Errorf("Resumed iteration count %d should include the checkpointed %d",
			final.Iterations, checkpoint.Iteration)
	}
}
