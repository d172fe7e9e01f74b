package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cwbudde/markedpoint/internal/anneal"
)

// penalty is the cost of pilot runs that failed or returned a non-finite energy.
const penalty = 1e300

// PilotFunc runs one short optimization with the given schedule and returns
// its final energy. It must be deterministic for a fixed schedule.
type PilotFunc func(ctx context.Context, schedule anneal.Geometric) (float64, error)

// Tuner searches initial temperature and cooling rate of a geometric
// schedule by minimizing pilot-run energy. The search space is normalized to
// [0, 1]^2: the first coordinate maps to log10 of the initial temperature,
// the second linearly to the rate.
type Tuner struct {
	Optimizer Optimizer
	Pilot     PilotFunc

	MinLogTemperature float64
	MaxLogTemperature float64
	MinRate           float64
	MaxRate           float64
	Floor             float64
}

// DefaultTuner returns a tuner over T0 in [1e-3, 1e2] and rate in [0.9, 0.99999].
func DefaultTuner(o Optimizer, pilot PilotFunc) *Tuner {
	return &Tuner{
		Optimizer:         o,
		Pilot:             pilot,
		MinLogTemperature: -3,
		MaxLogTemperature: 2,
		MinRate:           0.9,
		MaxRate:           0.99999,
	}
}

// TuneResult is the best schedule found.
type TuneResult struct {
	Schedule    anneal.Geometric
	Energy      float64
	Evaluations int
}

// Schedule maps a normalized point to a schedule.
func (t *Tuner) Schedule(x []float64) anneal.Geometric {
	clamp := func(v float64) float64 { return math.Min(1, math.Max(0, v)) }
	logT := t.MinLogTemperature + clamp(x[0])*(t.MaxLogTemperature-t.MinLogTemperature)
	rate := t.MinRate + clamp(x[1])*(t.MaxRate-t.MinRate)
	return anneal.Geometric{Initial: math.Pow(10, logT), Rate: rate, Floor: t.Floor}
}

func (t *Tuner) validate() error {
	switch {
	case t.Optimizer == nil || t.Pilot == nil:
		return errors.New("tuner needs an optimizer and a pilot function")
	case !(t.MaxLogTemperature > t.MinLogTemperature):
		return fmt.Errorf("empty temperature range [%g, %g]", t.MinLogTemperature, t.MaxLogTemperature)
	case !(t.MaxRate > t.MinRate) || t.MinRate <= 0 || t.MaxRate >= 1:
		return fmt.Errorf("rate range [%g, %g] must lie inside (0, 1)", t.MinRate, t.MaxRate)
	}
	return nil
}

// Tune runs the search. Pilot errors count as a bad schedule unless they
// are fatal, in which case the first one is returned. Once ctx is done the
// remaining evaluations are skipped and ctx.Err() is returned.
func (t *Tuner) Tune(ctx context.Context) (*TuneResult, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		evals    int
		firstErr error
		best     = TuneResult{Energy: math.Inf(1)}
	)
	eval := func(x []float64) float64 {
		mu.Lock()
		stop := firstErr != nil || ctx.Err() != nil
		mu.Unlock()
		if stop {
			return penalty
		}

		s := t.Schedule(x)
		e, err := t.Pilot(ctx, s)

		mu.Lock()
		defer mu.Unlock()
		evals++
		if err != nil {
			if Fatal(err) && firstErr == nil {
				firstErr = err
			}
			slog.Debug("Pilot run failed", "initial", s.Initial, "rate", s.Rate, "error", err)
			return penalty
		}
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return penalty
		}
		if e < best.Energy {
			best.Energy = e
			best.Schedule = s
		}
		return e
	}

	_, _, err := t.Optimizer.Run(eval, []float64{0, 0}, []float64{1, 1})
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if math.IsInf(best.Energy, 1) {
		return nil, errors.New("no pilot run succeeded")
	}
	best.Evaluations = evals

	slog.Info("Schedule tuned",
		"initial_temperature", best.Schedule.Initial,
		"rate", best.Schedule.Rate,
		"energy", best.Energy,
		"evaluations", evals,
	)
	return &best, nil
}
