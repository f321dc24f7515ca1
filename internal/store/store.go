package store

// Store is the interface for checkpoint persistence. Implementations must be
// safe for concurrent use.
//
// Error conventions:
//   - nil on success
//   - ErrNotFound (via errors.Is) when a checkpoint doesn't exist
//   - wrapped errors with context for I/O and serialization failures
type Store interface {
	// SaveCheckpoint atomically saves a checkpoint for the given job,
	// overwriting any previous one. Implementations should use an atomic
	// write strategy (temp file + rename) so a crash never leaves a
	// corrupt checkpoint behind.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for the given job.
	// Returns ErrNotFound if none exists.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for all available checkpoints.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint and all associated artifacts
	// (checkpoint.json and trace.jsonl) for the given job.
	// Returns ErrNotFound if none exists.
	DeleteCheckpoint(jobID string) error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for it.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
