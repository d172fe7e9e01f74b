// Package opt runs simulated-annealing Metropolis-Hastings optimization over
// a marked point configuration and tunes its annealing parameters.
package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/markedpoint/internal/anneal"
	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/energy"
	"github.com/cwbudde/markedpoint/internal/feedback"
	"github.com/cwbudde/markedpoint/internal/kernel"
	"github.com/cwbudde/markedpoint/internal/rng"
	"github.com/cwbudde/markedpoint/internal/term"
)

// VerifyTolerance is the relative energy drift tolerated by periodic verification.
const VerifyTolerance = 1e-6

// StopReason tells why FindOptimum returned.
type StopReason string

const (
	// ReasonTerminated means the termination condition stopped the run.
	ReasonTerminated StopReason = "terminated"
	// ReasonStalled means MaxNullStreak consecutive iterations produced no proposal.
	ReasonStalled StopReason = "stalled"
	// ReasonCancelled means the context was done.
	ReasonCancelled StopReason = "cancelled"
	// ReasonAborted means an unrecoverable error stopped the run.
	ReasonAborted StopReason = "aborted"
)

// ErrIncompleteScheme is returned when a required Scheme field is missing.
var ErrIncompleteScheme = errors.New("incomplete optimization scheme")

// Scheme bundles everything FindOptimum needs besides the configuration.
type Scheme struct {
	Proposer    *kernel.Proposer
	Schedule    anneal.Schedule
	Termination term.Condition

	// Feedback is optional.
	Feedback feedback.Receiver

	// MaxNullStreak stops the run after that many consecutive iterations
	// without a proposal. Zero disables the check.
	MaxNullStreak int

	// VerifyEvery recomputes the full energy and checks index sync every
	// that many non-null iterations. Zero disables verification.
	VerifyEvery int

	// StartIteration offsets the schedule, for resumed runs.
	StartIteration int

	Logger *slog.Logger
}

// KernelStats counts the outcomes of one kernel's proposals.
type KernelStats struct {
	Proposed int `json:"proposed"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
	Declined int `json:"declined"`
}

// Result summarizes a run.
type Result struct {
	Final *cfg.Configuration

	Iterations        int
	NullIterations    int
	Accepted          int
	Rejected          int
	FailedEvaluations int

	InitialEnergy float64
	FinalEnergy   float64
	BestEnergy    float64

	Elapsed time.Duration
	Reason  StopReason
	Kernels map[string]KernelStats
}

// AcceptanceRate returns accepted over non-null iterations.
func (r *Result) AcceptanceRate() float64 {
	if r.Iterations == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Iterations)
}

func (s *Scheme) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scheme) validate() error {
	switch {
	case s.Proposer == nil:
		return fmt.Errorf("%w: no proposer", ErrIncompleteScheme)
	case s.Schedule == nil:
		return fmt.Errorf("%w: no schedule", ErrIncompleteScheme)
	case s.Termination == nil:
		return fmt.Errorf("%w: no termination condition", ErrIncompleteScheme)
	}
	return nil
}

// Fatal reports whether err must stop the optimization instead of only
// rejecting the proposal that produced it.
func Fatal(err error) bool {
	return errors.Is(err, energy.ErrUnrecoverable) ||
		errors.Is(err, cfg.ErrInvariant) ||
		errors.Is(err, cfg.ErrStaleCandidate)
}

// FindOptimum anneals c in place until the termination condition stops, the
// proposer stalls or ctx is done. Cancellation is not an error: the result
// carries ReasonCancelled. A fatal error returns the partial result together
// with the error.
//
// The termination condition sees the number of non-null iterations done so
// far, the current energy and the configuration size. It is consulted once
// before the first iteration and after every non-null one, so stateful
// conditions never count null iterations.
func (s *Scheme) FindOptimum(ctx context.Context, c *cfg.Configuration, r rng.Source) (*Result, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	fb := s.Feedback
	if fb == nil {
		fb = feedback.Nop{}
	}
	log := s.logger()

	start := time.Now()
	res := &Result{
		Final:         c,
		InitialEnergy: c.Energy(),
		BestEnergy:    c.Energy(),
		Kernels:       make(map[string]KernelStats),
	}
	declinedBefore := s.Proposer.Declined()
	annealer := anneal.NewAnnealer(s.Schedule)

	log.Info("Starting optimization",
		"marks", c.Len(),
		"energy", res.InitialEnergy,
		"kernels", len(s.Proposer.Kernels()),
	)

	var (
		step       int
		nullStreak int
		fatal      error
	)
loop:
	for {
		if nullStreak == 0 && !s.Termination.Continue(res.Iterations, c.Energy(), c.Len()) {
			res.Reason = ReasonTerminated
			break
		}
		select {
		case <-ctx.Done():
			res.Reason = ReasonCancelled
			break loop
		default:
		}

		step++
		temperature := annealer.Temperature(s.StartIteration + res.Iterations)

		prop, ok := s.Proposer.Next(c, r)
		if !ok {
			res.NullIterations++
			nullStreak++
			fb.OnIteration(feedback.Event{
				Iteration:   res.Iterations,
				Step:        step,
				Null:        true,
				Energy:      c.Energy(),
				BestEnergy:  res.BestEnergy,
				Temperature: temperature,
				Size:        c.Len(),
				Generation:  c.Generation(),
				Cache:       c.CacheStats(),
				Time:        time.Now(),
			})
			if s.MaxNullStreak > 0 && nullStreak >= s.MaxNullStreak {
				log.Warn("No proposals, stopping", "streak", nullStreak)
				res.Reason = ReasonStalled
				break
			}
			continue
		}
		nullStreak = 0
		res.Iterations++
		ks := res.Kernels[prop.Kernel]
		ks.Proposed++

		var accepted, failed bool
		cand, err := c.EvaluateDelta(prop.Delta)
		switch {
		case err != nil && Fatal(err):
			fatal = fmt.Errorf("iteration %d (%s): %w", res.Iterations, prop.Kernel, err)
		case err != nil:
			failed = true
			log.Debug("Candidate evaluation failed", "iteration", res.Iterations, "kernel", prop.Kernel, "error", err)
		default:
			// One uniform draw per decision keeps runs reproducible.
			u := r.Float64()
			if anneal.Accept(cand.Before(), cand.Energy(), prop.LogHastings(), temperature, u) {
				if err := c.Commit(cand); err != nil {
					fatal = fmt.Errorf("iteration %d (%s): commit: %w", res.Iterations, prop.Kernel, err)
				} else {
					accepted = true
				}
			}
		}
		if fatal != nil {
			res.Kernels[prop.Kernel] = ks
			res.Reason = ReasonAborted
			break
		}

		switch {
		case failed:
			res.FailedEvaluations++
			ks.Failed++
		case accepted:
			res.Accepted++
			ks.Accepted++
		default:
			res.Rejected++
			ks.Rejected++
		}
		res.Kernels[prop.Kernel] = ks
		if e := c.Energy(); e < res.BestEnergy {
			res.BestEnergy = e
		}

		if s.VerifyEvery > 0 && res.Iterations%s.VerifyEvery == 0 {
			if err := s.verify(ctx, c); err != nil {
				fatal = fmt.Errorf("iteration %d: %w", res.Iterations, err)
				res.Reason = ReasonAborted
				break
			}
		}

		ev := feedback.Event{
			Iteration:   res.Iterations,
			Step:        step,
			Kernel:      prop.Kernel,
			Accepted:    accepted,
			Failed:      failed,
			Energy:      c.Energy(),
			BestEnergy:  res.BestEnergy,
			Temperature: temperature,
			Size:        c.Len(),
			Generation:  c.Generation(),
			Cache:       c.CacheStats(),
			Time:        time.Now(),
		}
		if feedback.WantsSnapshot(fb, res.Iterations) {
			ev.Marks = c.Marks()
		}
		fb.OnIteration(ev)
	}

	for name, n := range s.Proposer.Declined() {
		ks := res.Kernels[name]
		ks.Declined = n - declinedBefore[name]
		res.Kernels[name] = ks
	}
	res.FinalEnergy = c.Energy()
	res.Elapsed = time.Since(start)

	fb.OnComplete(feedback.Summary{
		Iterations:     res.Iterations,
		NullIterations: res.NullIterations,
		Accepted:       res.Accepted,
		Rejected:       res.Rejected,
		Failed:         res.FailedEvaluations,
		InitialEnergy:  res.InitialEnergy,
		FinalEnergy:    res.FinalEnergy,
		BestEnergy:     res.BestEnergy,
		Generation:     c.Generation(),
		Elapsed:        res.Elapsed,
		Reason:         string(res.Reason),
		Err:            fatal,
		Marks:          c.Marks(),
	})

	if fatal != nil {
		log.Error("Optimization aborted", "iteration", res.Iterations, "error", fatal)
		return res, fatal
	}
	log.Info("Optimization complete",
		"reason", res.Reason,
		"iterations", res.Iterations,
		"null_iterations", res.NullIterations,
		"acceptance_rate", res.AcceptanceRate(),
		"initial_energy", res.InitialEnergy,
		"final_energy", res.FinalEnergy,
		"best_energy", res.BestEnergy,
		"marks", c.Len(),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (s *Scheme) verify(ctx context.Context, c *cfg.Configuration) error {
	if err := c.Verify(); err != nil {
		return err
	}
	return c.VerifyEnergy(ctx, VerifyTolerance)
}
