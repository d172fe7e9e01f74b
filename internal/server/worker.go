package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/markedpoint/internal/feedback"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/opt"
	"github.com/cwbudde/markedpoint/internal/pipeline"
	"github.com/cwbudde/markedpoint/internal/store"
)

// broadcastInterval throttles SSE progress to 2 updates per second.
const broadcastInterval = 500 * time.Millisecond

// defaultSnapshotEvery is used for the marks endpoint when the job
// configures no snapshot interval.
const defaultSnapshotEvery = 500

// runEnv holds what jobs need besides their configuration.
type runEnv struct {
	store    store.Store
	traceDir string
	metrics  *feedback.Metrics
}

// runJob executes an optimization job. It blocks until the job finished.
func runJob(ctx context.Context, jm *JobManager, env runEnv, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.cancel = cancel
	})
	if err != nil {
		return err
	}
	// A cancel that arrived while pending set the flag before the context existed.
	if job.stop.IsSet() {
		cancel()
	}

	slog.Info("Starting job", "job_id", jobID, "chains", job.Config.Chains, "resume", job.Resume)

	cp, err := pipeline.Build(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	progress := &progressReceiver{jm: jm, jobID: jobID, snapshotEvery: job.Config.Feedback.SnapshotEvery}
	if progress.snapshotEvery == 0 {
		progress.snapshotEvery = defaultSnapshotEvery
	}
	if job.Resume {
		// Progress is reported in overall iterations.
		if checkpoint, err := env.store.LoadCheckpoint(jobID); err == nil {
			progress.offset = checkpoint.Iteration
		}
	}
	async := feedback.NewAsync(progress, 0)

	result, err := pipeline.Execute(ctx, pipeline.Job{
		ID:         jobID,
		Components: cp,
		Store:      env.store,
		TraceDir:   env.traceDir,
		Resume:     job.Resume,
		Metrics:    env.metrics,
		Observer: func(chain int) feedback.Receiver {
			if chain != 0 {
				return nil
			}
			return async
		},
		Stop: job.stop,
	})
	async.Close()
	if dropped := async.Dropped(); dropped > 0 {
		slog.Debug("Progress events dropped", "job_id", jobID, "dropped", dropped)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			markJobCancelled(jm, jobID)
			return nil
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	best := result.Best.Result
	state := StateCompleted
	if best.Reason == opt.ReasonCancelled || job.stop.IsSet() {
		state = StateCancelled
	}
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Iterations = result.StartIteration + best.Iterations
		j.Accepted = best.Accepted
		j.Energy = best.FinalEnergy
		j.BestEnergy = best.BestEnergy
		j.InitialEnergy = best.InitialEnergy
		j.Size = best.Final.Len()
		j.StopReason = string(best.Reason)
		j.marks = mark.Records(best.Final.Marks())
		j.EndTime = &endTime
		j.cancel = nil
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"state", state,
		"elapsed", best.Elapsed,
		"iterations", best.Iterations,
		"initial_energy", best.InitialEnergy,
		"final_energy", best.FinalEnergy,
		"marks", best.Final.Len(),
	)

	final, _ := jm.GetJob(jobID)
	jm.broadcaster.Broadcast(eventFor(final))
	return nil
}

// progressReceiver mirrors chain 0 into the job record and broadcasts
// throttled progress events. It runs behind feedback.Async.
type progressReceiver struct {
	jm            *JobManager
	jobID         string
	snapshotEvery int
	offset        int
	lastBroadcast time.Time
}

func (p *progressReceiver) WantsSnapshot(iteration int) bool {
	return iteration > 0 && iteration%p.snapshotEvery == 0
}

func (p *progressReceiver) OnIteration(ev feedback.Event) {
	var records []mark.Record
	if ev.Marks != nil {
		records = mark.Records(ev.Marks)
	}
	var snapshot Job
	p.jm.UpdateJob(p.jobID, func(j *Job) {
		j.Iterations = p.offset + ev.Iteration
		j.Energy = ev.Energy
		j.BestEnergy = ev.BestEnergy
		j.Temperature = ev.Temperature
		j.Size = ev.Size
		if ev.Accepted {
			j.Accepted++
		}
		if records != nil {
			j.marks = records
		}
		snapshot = *j
	})
	if time.Since(p.lastBroadcast) >= broadcastInterval {
		p.lastBroadcast = time.Now()
		p.jm.broadcaster.Broadcast(eventFor(&snapshot))
	}
}

func (p *progressReceiver) OnComplete(s feedback.Summary) {
	p.jm.UpdateJob(p.jobID, func(j *Job) {
		j.InitialEnergy = s.InitialEnergy
	})
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
		j.cancel = nil
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFor(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
		j.cancel = nil
	})
	slog.Info("Job cancelled", "job_id", jobID)
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFor(job))
	}
}
