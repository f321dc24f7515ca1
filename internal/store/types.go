package store

import (
	"fmt"
	"time"
)

// JobConfig holds the configuration of an optimization job as persisted with
// a checkpoint. It mirrors the run configuration rather than importing it,
// which keeps the store free of dependencies on the server and fit packages.
type JobConfig struct {
	Function           string    `json:"function"`
	Dim                int       `json:"dim"`
	Start              []float64 `json:"start,omitempty"`
	InitialRadius      float64   `json:"initialRadius"`
	GrowthFactor       float64   `json:"growthFactor"`
	ShrinkFactor       float64   `json:"shrinkFactor"`
	Epsilon            float64   `json:"epsilon"`
	MaxIterations      int       `json:"maxIterations"`
	Seed               int64     `json:"seed"`
	Maximize           bool      `json:"maximize,omitempty"`
	StallPatience      int       `json:"stallPatience,omitempty"`
	StallThreshold     float64   `json:"stallThreshold,omitempty"`
	CheckpointInterval int       `json:"checkpointInterval,omitempty"` // seconds, 0 = disabled
}

// Checkpoint is a saved optimization state that can be resumed later.
//
// The checkpoint stores the best position found so far, not the optimizer's
// internal covariance state. Resuming therefore restarts the search from the
// checkpointed best position with a fresh covariance at the configured
// initial radius and the remaining iteration budget. The best cost never
// gets worse across a resume, but the trajectory is not a perfect
// continuation of the interrupted run. Serializing the full covariance
// matrix would tie the format to one optimizer variant for little gain.
type Checkpoint struct {
	// JobID is the unique identifier of the optimization job.
	JobID string `json:"jobId"`

	// BestParams is the best position found so far; its length equals the
	// configured dimensionality.
	BestParams []float64 `json:"bestParams"`

	// BestCost is the cost at BestParams under the configured direction.
	BestCost float64 `json:"bestCost"`

	// InitialCost is the cost at the start position, kept for improvement
	// tracking.
	InitialCost float64 `json:"initialCost"`

	// Iteration is the trial count when the checkpoint was taken.
	Iteration int `json:"iteration"`

	// CovarianceNorm is the Frobenius norm of the search distribution at
	// checkpoint time, useful for judging how far the run had contracted.
	CovarianceNorm float64 `json:"covarianceNorm"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation on resume.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the parameter payload,
// used for listings.
type CheckpointInfo struct {
	JobID     string    `json:"jobId"`
	BestCost  float64   `json:"bestCost"`
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
	Function  string    `json:"function"`
	Dim       int       `json:"dim"`
}

// NewCheckpoint creates a checkpoint from runtime job state.
func NewCheckpoint(jobID string, bestParams []float64, bestCost, initialCost float64, iteration int, covarianceNorm float64, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:          jobID,
		BestParams:     bestParams,
		BestCost:       bestCost,
		InitialCost:    initialCost,
		Iteration:      iteration,
		CovarianceNorm: covarianceNorm,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo converts a full Checkpoint to its metadata view.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:     c.JobID,
		BestCost:  c.BestCost,
		Iteration: c.Iteration,
		Timestamp: c.Timestamp,
		Function:  c.Config.Function,
		Dim:       c.Config.Dim,
	}
}

// Validate checks that the checkpoint is internally consistent.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestParams) == 0 {
		return &ValidationError{Field: "BestParams", Reason: "cannot be empty"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.CovarianceNorm < 0 {
		return &ValidationError{Field: "CovarianceNorm", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Function == "" {
		return &ValidationError{Field: "Config.Function", Reason: "cannot be empty"}
	}
	if c.Config.Dim <= 0 {
		return &ValidationError{Field: "Config.Dim", Reason: "must be positive"}
	}
	if c.Config.InitialRadius <= 0 {
		return &ValidationError{Field: "Config.InitialRadius", Reason: "must be positive"}
	}
	if c.Config.MaxIterations <= 0 {
		return &ValidationError{Field: "Config.MaxIterations", Reason: "must be positive"}
	}
	if len(c.BestParams) != c.Config.Dim {
		return &ValidationError{
			Field:  "BestParams",
			Reason: fmt.Sprintf("length mismatch: got %d params for dim %d", len(c.BestParams), c.Config.Dim),
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// IsCompatible checks whether this checkpoint can be resumed with the given
// config. The objective, dimensionality and optimization direction must
// match; budgets and factors may change across a resume.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Function != config.Function {
		return &CompatibilityError{
			Field:    "Function",
			Expected: c.Config.Function,
			Actual:   config.Function,
		}
	}
	if c.Config.Dim != config.Dim {
		return &CompatibilityError{
			Field:    "Dim",
			Expected: fmt.Sprintf("%d", c.Config.Dim),
			Actual:   fmt.Sprintf("%d", config.Dim),
		}
	}
	if c.Config.Maximize != config.Maximize {
		return &CompatibilityError{
			Field:    "Maximize",
			Expected: fmt.Sprintf("%t", c.Config.Maximize),
			Actual:   fmt.Sprintf("%t", config.Maximize),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
