package server

import (
	"testing"
	"time"

	"github.com/cwbudde/markedpoint/internal/config"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	cfg := config.Default()
	cfg.Seed = 42

	job, err := jm.CreateJob(cfg, "")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}
	if job.Resume {
		t.Error("A new job should not resume")
	}
	if job.Config.Seed != 42 {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_CreateJob_Resume(t *testing.T) {
	jm := NewJobManager()

	job, err := jm.CreateJob(config.Default(), "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := jm.CreateJob(config.Default(), job.ID); err == nil {
		t.Error("Resuming a pending job should fail")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	resumed, err := jm.CreateJob(config.Default(), job.ID)
	if err != nil {
		t.Fatalf("Resuming a finished job failed: %v", err)
	}
	if !resumed.Resume || resumed.ID != job.ID || resumed.State != StatePending {
		t.Errorf("Unexpected resumed job %+v", resumed)
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(config.Default(), "")

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	// Copies are detached from the stored job.
	retrieved.Iterations = 99
	again, _ := jm.GetJob(job.ID)
	if again.Iterations != 0 {
		t.Error("GetJob should return a copy")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first, _ := jm.CreateJob(config.Default(), "")
	time.Sleep(time.Millisecond)
	jm.CreateJob(config.Default(), "")

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(config.Default(), "")

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Iterations = 10
		j.BestEnergy = -12.5
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
	if updated.BestEnergy != -12.5 {
		t.Error("BestEnergy should be updated")
	}
	if len(jm.GetRunningJobs()) != 1 {
		t.Error("Expected one running job")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(config.Default(), "")
	cancelled := false
	jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.cancel = func() { cancelled = true }
	})

	if !jm.CancelJob(job.ID) {
		t.Fatal("CancelJob should succeed on a running job")
	}
	if !cancelled {
		t.Error("Cancel func should be called")
	}
	got, _ := jm.GetJob(job.ID)
	if !got.stop.IsSet() {
		t.Error("Stop flag should be set")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCancelled })
	if jm.CancelJob(job.ID) {
		t.Error("CancelJob should fail on a finished job")
	}
	if jm.CancelJob("nonexistent") {
		t.Error("CancelJob should fail on an unknown job")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job, _ := jm.CreateJob(config.Default(), "")

	// Simulate concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iteration int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Iterations = iteration
				time.Sleep(1 * time.Millisecond)
			})
			jm.GetJob(job.ID)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}
