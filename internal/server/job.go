package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/term"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job can no longer change.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job represents an optimization job
type Job struct {
	ID            string           `json:"id"`
	State         JobState         `json:"state"`
	Config        config.RunConfig `json:"config"`
	Resume        bool             `json:"resume,omitempty"`
	Iterations    int              `json:"iterations"`
	Accepted      int              `json:"accepted"`
	Energy        float64          `json:"energy"`
	BestEnergy    float64          `json:"bestEnergy"`
	InitialEnergy float64          `json:"initialEnergy"`
	Temperature   float64          `json:"temperature"`
	Size          int              `json:"marks"`
	StopReason    string           `json:"stopReason,omitempty"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       *time.Time       `json:"endTime,omitempty"`
	Error         string           `json:"error,omitempty"`

	// marks is the latest snapshot, the final configuration once completed.
	marks  []mark.Record
	cancel context.CancelFunc
	stop   *term.Flag
}

// Elapsed returns the run time so far.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job. With an empty id a new UUID is used;
// an id is only passed when resuming an earlier job.
func (jm *JobManager) CreateJob(cfg config.RunConfig, id string) (*Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	resume := id != ""
	if !resume {
		id = uuid.New().String()
	}
	if existing, ok := jm.jobs[id]; ok && !existing.State.Terminal() {
		return nil, fmt.Errorf("job %s is still %s", id, existing.State)
	}

	job := &Job{
		ID:        id,
		State:     StatePending,
		Config:    cfg,
		Resume:    resume,
		StartTime: time.Now(),
		stop:      &term.Flag{},
	}
	jm.jobs[job.ID] = job
	snapshot := *job
	return &snapshot, nil
}

// GetJob returns a copy of the job.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Marks returns the latest mark snapshot of a job.
func (jm *JobManager) Marks(id string) ([]mark.Record, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.marks, true
}

// ListJobs returns copies of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartTime.Before(jobs[k].StartTime) })
	return jobs
}

// UpdateJob atomically updates a job using the provided function
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

// CancelJob asks a pending or running job to stop. It returns false when
// the job does not exist or already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Terminal() {
		return false
	}
	job.stop.Set()
	if job.cancel != nil {
		job.cancel()
	}
	return true
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			snapshot := *job
			runningJobs = append(runningJobs, &snapshot)
		}
	}
	return runningJobs
}
