package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore persists checkpoints on the filesystem under
// <baseDir>/jobs/<jobID>/. Writes go through a temp file followed by an
// atomic rename, so no locking is needed for concurrent use.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem-backed store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// JobDir returns the directory holding all artifacts of a job.
func (fs *FSStore) JobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) checkpointPath(jobID string) string {
	return filepath.Join(fs.JobDir(jobID), "checkpoint.json")
}

// SaveCheckpoint atomically writes the checkpoint for the given job.
func (fs *FSStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	if err := os.MkdirAll(fs.JobDir(jobID), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	// Unique temp file + rename keeps concurrent saves atomic.
	tmp, err := os.CreateTemp(fs.JobDir(jobID), "checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}
	tempPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp checkpoint file: %w", err)
	}

	finalPath := fs.checkpointPath(jobID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	slog.Debug("Checkpoint saved", "job_id", jobID, "path", finalPath)
	return nil
}

// LoadCheckpoint reads the checkpoint for the given job.
func (fs *FSStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	data, err := os.ReadFile(fs.checkpointPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints scans the jobs directory and returns metadata for every
// readable checkpoint. Corrupted entries are skipped with a warning.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []CheckpointInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	var infos []CheckpointInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()

		checkpoint, err := fs.LoadCheckpoint(jobID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("Failed to load checkpoint for listing", "job_id", jobID, "error", err)
			}
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}

	return infos, nil
}

// DeleteCheckpoint removes the job directory and everything in it.
func (fs *FSStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	jobDir := fs.JobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "job_id", jobID, "path", jobDir)
	return nil
}
