package server

import (
	"testing"
	"time"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := JobConfig{
		Function:      "sphere",
		Dim:           2,
		InitialRadius: 1.0,
		MaxIterations: 100,
		Seed:          42,
	}

	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.Function != "sphere" {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_CreateJobWithID(t *testing.T) {
	jm := NewJobManager()

	job, err := jm.CreateJobWithID("resumed-job", JobConfig{Function: "sphere", Dim: 2})
	if err != nil {
		t.Fatalf("CreateJobWithID should succeed: %v", err)
	}
	if job.ID != "resumed-job" {
		t.Errorf("Expected ID resumed-job, got %s", job.ID)
	}

	// A second job with the same ID is rejected while the first is live.
	if _, err := jm.CreateJobWithID("resumed-job", JobConfig{Function: "sphere", Dim: 2}); err == nil {
		t.Error("Duplicate live job ID should be rejected")
	}

	// Once the first run reaches a terminal state the ID can be reused.
	jm.UpdateJob("resumed-job", func(j *Job) { j.State = StateCompleted })
	if _, err := jm.CreateJobWithID("resumed-job", JobConfig{Function: "sphere", Dim: 2}); err != nil {
		t.Errorf("Reusing ID of finished job should succeed: %v", err)
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	config := JobConfig{Function: "sphere", Dim: 2}
	job := jm.CreateJob(config)

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_GetJobReturnsSnapshot(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Function: "sphere", Dim: 2})
	jm.UpdateJob(job.ID, func(j *Job) {
		j.BestParams = []float64{1, 2}
	})

	snapshot, _ := jm.GetJob(job.ID)
	snapshot.BestParams[0] = 99
	snapshot.State = StateFailed

	fresh, _ := jm.GetJob(job.ID)
	if fresh.BestParams[0] != 1 {
		t.Error("Mutating a snapshot should not affect the stored job")
	}
	if fresh.State != StatePending {
		t.Errorf("Expected pending state, got %s", fresh.State)
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	jm.CreateJob(JobConfig{Function: "sphere", Dim: 2})
	jm.CreateJob(JobConfig{Function: "rastrigin", Dim: 3})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Function: "sphere", Dim: 2})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Iterations = 10
		j.BestCost = 123.45
	})

	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.Iterations != 10 {
		t.Error("Iterations should be updated")
	}
	if updated.BestCost != 123.45 {
		t.Error("BestCost should be updated")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_StopJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Function: "sphere", Dim: 2})

	stopped := false
	jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.stop = func() { stopped = true }
	})

	if err := jm.StopJob(job.ID); err != nil {
		t.Fatalf("StopJob should succeed: %v", err)
	}
	if !stopped {
		t.Error("Stop callback should have been invoked")
	}

	// Stopping a finished job is an error.
	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	if err := jm.StopJob(job.ID); err == nil {
		t.Error("Stopping a completed job should fail")
	}

	if err := jm.StopJob("nonexistent"); err == nil {
		t.Error("Stopping a nonexistent job should fail")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Function: "sphere", Dim: 2})

	// Simulate concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iteration int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Iterations = iteration
				time.Sleep(1 * time.Millisecond)
			})
			done <- true
		}(i)
	}

	// Wait for all updates
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should not crash - actual value depends on race
	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}
