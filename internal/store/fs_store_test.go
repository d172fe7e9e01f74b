package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/markedpoint/internal/mark"
	"gonum.org/v1/gonum/spatial/r3"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

// createTestCheckpoint creates a checkpoint holding two ellipses.
func createTestCheckpoint(jobID string) *Checkpoint {
	marks := []mark.Mark{
		mark.NewEllipse(1, r3.Vec{X: 10, Y: 12}, 4, 3, 0.2, mark.DefaultRegionMap()),
		mark.NewEllipse(4, r3.Vec{X: 30, Y: 8}, 5, 5, 0, mark.DefaultRegionMap()),
	}
	return &Checkpoint{
		JobID:         jobID,
		Marks:         mark.Records(marks),
		Energy:        -12.5,
		InitialEnergy: 0,
		BestEnergy:    -13,
		Iteration:     500,
		Generation:    77,
		Timestamp:     time.Now(),
		Config: JobConfig{
			ImagePath:  "assets/cells.png",
			MarkKind:   "ellipse",
			Energy:     "contrast",
			Iterations: 1000,
			Seed:       42,
		},
	}
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("Expected base dir %s, got %s", dir, store.BaseDir())
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestFSStore_SaveCheckpoint(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-123"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "jobs", jobID, "checkpoint.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Checkpoint file was not created at %s", expectedPath)
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save")
	}
}

func TestFSStore_SaveRejectsInvalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveCheckpoint("", createTestCheckpoint("x")); err == nil {
		t.Error("Expected error for empty jobID")
	}
	if err := store.SaveCheckpoint("x", nil); err == nil {
		t.Error("Expected error for nil checkpoint")
	}

	bad := createTestCheckpoint("x")
	bad.Marks = nil
	err := store.SaveCheckpoint("x", bad)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "Marks" {
		t.Errorf("Expected validation error on Marks, got %v", err)
	}
}

func TestFSStore_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	if _, err := store.LoadCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on load, got %v", err)
	}
	if err := store.DeleteCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on delete, got %v", err)
	}
}

func TestFSStore_ListSkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveCheckpoint("good", createTestCheckpoint("good")); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tempDir, "jobs", "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(tempDir, "jobs", "corrupt")
	if err := os.MkdirAll(corrupt, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, "checkpoint.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != "good" {
		t.Errorf("Expected only the good checkpoint, got %+v", infos)
	}
}

func TestFSStore_DeleteRemovesTrace(t *testing.T) {
	store, tempDir := setupTestStore(t)
	jobID := "with-trace"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	tw, err := NewTraceWriter(tempDir, jobID, false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteCheckpoint(jobID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "jobs", jobID)); !os.IsNotExist(err) {
		t.Error("Job directory should be removed with its trace")
	}
}

func TestFSStore_ConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const numJobs = 10
	var wg sync.WaitGroup
	for i := 0; i < numJobs; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			jobID := fmt.Sprintf("concurrent-job-%d", idx)
			if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
				t.Errorf("Concurrent save failed for job %s: %v", jobID, err)
			}
		}(i)
	}
	wg.Wait()

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != numJobs {
		t.Errorf("Expected %d checkpoints, got %d", numJobs, len(infos))
	}
}
