package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/feedback"
	"github.com/cwbudde/markedpoint/internal/store"
	"github.com/cwbudde/markedpoint/internal/term"
)

// OpenStore opens the configured checkpoint backend. The returned function
// releases it.
func OpenStore(sc config.StoreConfig) (store.Store, func() error, error) {
	switch sc.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(sc.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendFS, "":
		s, err := store.NewFSStore(sc.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// Job is a persisted run: checkpoints go to Store, the trace of chain 0 to
// TraceDir.
type Job struct {
	ID         string
	Components *Components
	Store      store.Store
	// TraceDir enables the JSONL trace when set.
	TraceDir string
	// Resume continues from the job's checkpoint.
	Resume bool
	// Metrics, when set, observes chain 0.
	Metrics *feedback.Metrics
	// Observer returns an extra receiver for a chain; nil means none.
	Observer func(chain int) feedback.Receiver
	Stop     *term.Flag
	Logger   *slog.Logger
}

// JobResult is the outcome of Execute.
type JobResult struct {
	Best   *ChainResult
	Chains []*ChainResult
	// StartIteration is non-zero for resumed runs.
	StartIteration int
}

// ErrIncompatibleCheckpoint is returned when a checkpoint was written by a
// run with a different image, mark kind or energy.
var ErrIncompatibleCheckpoint = errors.New("incompatible checkpoint")

// Execute runs the job's chains with logging, tracing and checkpointing and
// saves the best chain as the job's final checkpoint.
func Execute(ctx context.Context, job Job) (*JobResult, error) {
	if job.ID == "" || job.Components == nil || job.Store == nil {
		return nil, errors.New("job needs an id, components and a store")
	}
	cp := job.Components
	jobConfig := cp.Config.JobConfig()
	log := job.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("job_id", job.ID)

	opts := Options{Stop: job.Stop, Logger: log}
	out := &JobResult{}
	var initialEnergy float64
	if job.Resume {
		checkpoint, err := job.Store.LoadCheckpoint(job.ID)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", job.ID, err)
		}
		if err := checkpoint.IsCompatible(jobConfig); err != nil {
			return nil, fmt.Errorf("resume %s: %w: %w", job.ID, ErrIncompatibleCheckpoint, err)
		}
		marks, err := checkpoint.MarkValues()
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", job.ID, err)
		}
		opts.Initial = marks
		opts.StartIteration = checkpoint.Iteration
		out.StartIteration = checkpoint.Iteration
		initialEnergy = checkpoint.InitialEnergy
		log.Info("Resuming from checkpoint",
			"iteration", checkpoint.Iteration,
			"marks", len(marks),
			"energy", checkpoint.Energy,
		)
	}

	var trace *feedback.Trace
	if job.TraceDir != "" {
		w, err := store.NewTraceWriter(job.TraceDir, job.ID, job.Resume)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Warn("Failed to close trace", "error", err)
			}
		}()
		trace = feedback.NewTrace(w, cp.Config.Feedback.TraceEvery, cp.Config.Feedback.SnapshotEvery)
	}

	checkpointer := &feedback.Checkpointer{
		Store:           job.Store,
		JobID:           job.ID,
		Every:           cp.Config.Feedback.CheckpointEvery,
		Config:          jobConfig,
		InitialEnergy:   initialEnergy,
		IterationOffset: opts.StartIteration,
	}

	// Chain 0 persists its progress on a separate goroutine so slow stores
	// do not stall the optimizer. Async drops iteration events when its
	// buffer is full; the final summary is always delivered.
	var durable *feedback.Async
	closeDurable := func() {
		if durable == nil {
			return
		}
		durable.Close()
		if n := durable.Dropped(); n > 0 {
			log.Warn("Dropped feedback events", "count", n)
		}
		durable = nil
	}
	defer closeDurable()

	opts.Feedback = func(chain int) feedback.Receiver {
		var rs, persist feedback.Multi
		if cp.Config.Feedback.LogEvery > 0 {
			rs = append(rs, feedback.Logger{Every: cp.Config.Feedback.LogEvery, Logger: log.With("chain", chain)})
		}
		if chain == 0 {
			persist, rs = rs, nil
			if trace != nil {
				persist = append(persist, trace)
			}
			persist = append(persist, checkpointer)
			if job.Metrics != nil {
				persist = append(persist, job.Metrics.Receiver(job.ID))
			}
			durable = feedback.NewAsync(persist, 0)
			rs = append(rs, durable)
		}
		if job.Observer != nil {
			if r := job.Observer(chain); r != nil {
				rs = append(rs, r)
			}
		}
		return rs
	}

	best, chains, err := RunChains(ctx, cp, opts)
	closeDurable()
	if err != nil {
		return nil, err
	}
	out.Best, out.Chains = best, chains

	if len(chains) > 1 {
		res := best.Result
		if !job.Resume {
			initialEnergy = res.InitialEnergy
		}
		final := store.NewCheckpoint(job.ID, res.Final.Marks(), res.FinalEnergy, initialEnergy, res.BestEnergy,
			opts.StartIteration+res.Iterations, res.Final.Generation(), jobConfig)
		if err := job.Store.SaveCheckpoint(job.ID, final); err != nil {
			return out, fmt.Errorf("save final checkpoint: %w", err)
		}
	}
	if err := checkpointer.Err(); err != nil {
		log.Warn("Some checkpoints failed", "error", err)
	}
	if trace != nil {
		if err := trace.Err(); err != nil {
			log.Warn("Trace incomplete", "error", err)
		}
	}
	return out, nil
}
