package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/evostrat/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is an alias of the persisted config to avoid duplicating it here.
type JobConfig = store.JobConfig

// Job represents one optimization job.
type Job struct {
	ID             string     `json:"id"`
	State          JobState   `json:"state"`
	Config         JobConfig  `json:"config"`
	BestParams     []float64  `json:"bestParams,omitempty"`
	BestCost       float64    `json:"bestCost"`
	InitialCost    float64    `json:"initialCost"`
	Iterations     int        `json:"iterations"`
	CovarianceNorm float64    `json:"covarianceNorm"`
	Converged      bool       `json:"converged"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Error          string     `json:"error,omitempty"`

	// stop requests cooperative termination of the running optimizer.
	// Installed by the worker, never serialized.
	stop          func()
	stopRequested bool
}

// clone returns a copy safe to hand outside the manager lock.
func (j *Job) clone() *Job {
	c := *j
	c.BestParams = append([]float64(nil), j.BestParams...)
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return &c
}

// JobManager owns the job table and the progress broadcaster.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates an empty JobManager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a new pending job with the given configuration.
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return job.clone()
}

// CreateJobWithID registers a pending job under a caller-chosen ID, used for
// resumed jobs so their checkpoint directory is reused. Fails if the ID is
// already taken by a live job.
func (jm *JobManager) CreateJobWithID(id string, config JobConfig) (*Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if existing, ok := jm.jobs[id]; ok {
		if existing.State == StatePending || existing.State == StateRunning {
			return nil, fmt.Errorf("job already active: %s", id)
		}
	}

	job := &Job{
		ID:        id,
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}
	jm.jobs[id] = job
	return job.clone(), nil
}

// GetJob retrieves a snapshot of a job by ID.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function.
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	updateFn(job)
	return nil
}

// StopJob requests cooperative termination of a running job. The optimizer
// observes the request at its next iteration boundary; repeated calls are
// harmless.
func (jm *JobManager) StopJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	switch job.State {
	case StatePending, StateRunning:
		job.stopRequested = true
		if job.stop != nil {
			job.stop()
		}
		return nil
	default:
		return fmt.Errorf("job not running: %s (state %s)", id, job.State)
	}
}

// GetRunningJobs returns snapshots of all jobs currently running.
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, job.clone())
		}
	}
	return running
}
