package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// backends runs a test against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("fs", func(t *testing.T) {
		s, _ := setupTestStore(t)
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "checkpoints.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		cp := createTestCheckpoint("job-1")
		if err := s.SaveCheckpoint(cp.JobID, cp); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}

		loaded, err := s.LoadCheckpoint(cp.JobID)
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if !reflect.DeepEqual(loaded.Marks, cp.Marks) {
			t.Errorf("Marks changed:\n got %+v\nwant %+v", loaded.Marks, cp.Marks)
		}
		if loaded.Energy != cp.Energy || loaded.Iteration != cp.Iteration || loaded.Generation != cp.Generation {
			t.Errorf("Scalar fields changed: %+v", loaded)
		}
		if loaded.Config != cp.Config {
			t.Errorf("Config changed: %+v", loaded.Config)
		}

		marks, err := loaded.MarkValues()
		if err != nil {
			t.Fatalf("MarkValues failed: %v", err)
		}
		if len(marks) != 2 || marks[1].ID() != 4 {
			t.Errorf("Unexpected decoded marks %v", marks)
		}
	})
}

func TestStore_Overwrite(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		first := createTestCheckpoint("job")
		first.Energy = -1
		second := createTestCheckpoint("job")
		second.Energy = -2

		if err := s.SaveCheckpoint("job", first); err != nil {
			t.Fatalf("First save failed: %v", err)
		}
		if err := s.SaveCheckpoint("job", second); err != nil {
			t.Fatalf("Second save failed: %v", err)
		}
		loaded, err := s.LoadCheckpoint("job")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Energy != -2 {
			t.Errorf("Expected energy -2, got %f", loaded.Energy)
		}
	})
}

func TestStore_ListNewestFirst(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		infos, err := s.ListCheckpoints()
		if err != nil {
			t.Fatalf("ListCheckpoints failed: %v", err)
		}
		if len(infos) != 0 {
			t.Fatalf("Expected empty list, got %d", len(infos))
		}

		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"old", "new", "mid"} {
			cp := createTestCheckpoint(id)
			cp.Timestamp = base.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)
			if err := s.SaveCheckpoint(id, cp); err != nil {
				t.Fatalf("SaveCheckpoint failed: %v", err)
			}
		}

		infos, err = s.ListCheckpoints()
		if err != nil {
			t.Fatalf("ListCheckpoints failed: %v", err)
		}
		if len(infos) != 3 {
			t.Fatalf("Expected 3 checkpoints, got %d", len(infos))
		}
		for i, want := range []string{"new", "mid", "old"} {
			if infos[i].JobID != want {
				t.Errorf("Position %d: expected %s, got %s", i, want, infos[i].JobID)
			}
		}
		if infos[0].Marks != 2 || infos[0].MarkKind != "ellipse" {
			t.Errorf("Unexpected info %+v", infos[0])
		}
		if !infos[2].Timestamp.Equal(base) {
			t.Errorf("Timestamp changed: %v", infos[2].Timestamp)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		if err := s.SaveCheckpoint("gone", createTestCheckpoint("gone")); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
		if err := s.DeleteCheckpoint("gone"); err != nil {
			t.Fatalf("DeleteCheckpoint failed: %v", err)
		}
		if _, err := s.LoadCheckpoint("gone"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := s.DeleteCheckpoint("gone"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})
}
