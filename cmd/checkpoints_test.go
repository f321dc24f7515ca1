package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/evostrat/internal/store"
)

func TestSelectCheckpointsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	// Delete checkpoints older than 7 days
	toDelete := selectCheckpointsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}

	found10 := false
	found30 := false
	for _, info := range toDelete {
		if info.JobID == "job1" {
			found10 = true
		}
		if info.JobID == "job4" {
			found30 = true
		}
	}

	if !found10 || !found30 {
		t.Error("Expected job1 and job4 to be selected for deletion")
	}
}

func TestSelectCheckpointsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	// Keep only last 2 checkpoints
	toDelete := selectCheckpointsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}

	// Should delete oldest two (job4 and job1)
	found30 := false
	found10 := false
	for _, info := range toDelete {
		if info.JobID == "job4" {
			found30 = true
		}
		if info.JobID == "job1" {
			found10 = true
		}
	}

	if !found30 || !found10 {
		t.Error("Expected job4 and job1 to be selected for deletion (oldest)")
	}
}

func TestSelectCheckpointsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
	}

	// Both criteria match job1: age marks it, the count pass must not
	// select it twice.
	toDelete := selectCheckpointsForDeletion(infos, 2, 7)

	if len(toDelete) != 1 {
		t.Fatalf("Expected 1 checkpoint to delete, got %d", len(toDelete))
	}
	if toDelete[0].JobID != "job1" {
		t.Errorf("Expected job1 to be selected, got %s", toDelete[0].JobID)
	}
}

func TestSelectCheckpointsForDeletion_NothingMatches(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job2", Timestamp: now},
	}

	if got := selectCheckpointsForDeletion(infos, 5, 7); len(got) != 0 {
		t.Errorf("Expected no deletions, got %d", len(got))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "a.json"), make([]byte, 100), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	sub := filepath.Join(tmpDir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.jsonl"), make([]byte, 50), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Expected size 150, got %d", size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %s, want %s", tt.bytes, got, tt.want)
		}
	}
}
