package opt

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/markedpoint/internal/anneal"
	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/energy"
	"github.com/cwbudde/markedpoint/internal/rng"
	"github.com/cwbudde/markedpoint/internal/term"
)

// gridOptimizer evaluates a fixed set of points and returns the best.
type gridOptimizer struct {
	points [][]float64
}

func (g gridOptimizer) Run(eval func([]float64) float64, _, _ []float64) ([]float64, float64, error) {
	best, cost := []float64(nil), math.Inf(1)
	for _, p := range g.points {
		if c := eval(p); c < cost {
			best, cost = p, c
		}
	}
	return best, cost, nil
}

func TestTuner_ScheduleMapping(t *testing.T) {
	tu := DefaultTuner(gridOptimizer{}, nil)
	low := tu.Schedule([]float64{0, 0})
	if math.Abs(low.Initial-1e-3) > 1e-12 || math.Abs(low.Rate-0.9) > 1e-12 {
		t.Errorf("Unexpected lower corner %+v", low)
	}
	high := tu.Schedule([]float64{1, 1})
	if math.Abs(high.Initial-100) > 1e-9 || math.Abs(high.Rate-0.99999) > 1e-12 {
		t.Errorf("Unexpected upper corner %+v", high)
	}
	clamped := tu.Schedule([]float64{-1, 2})
	if clamped.Initial != low.Initial || clamped.Rate != high.Rate {
		t.Errorf("Out-of-range coordinates should clamp, got %+v", clamped)
	}
}

func TestTuner_PicksLowestPilotEnergy(t *testing.T) {
	pilot := func(_ context.Context, s anneal.Geometric) (float64, error) {
		return math.Abs(math.Log10(s.Initial)) + math.Abs(s.Rate-0.95), nil
	}
	grid := gridOptimizer{points: [][]float64{{0, 0}, {0.6, 0.5}, {1, 1}}}
	tu := DefaultTuner(grid, pilot)

	res, err := tu.Tune(context.Background())
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if res.Evaluations != 3 {
		t.Errorf("Expected 3 evaluations, got %d", res.Evaluations)
	}
	want := tu.Schedule([]float64{0.6, 0.5})
	if res.Schedule != want {
		t.Errorf("Expected %+v, got %+v", want, res.Schedule)
	}
}

func TestTuner_WithMayflyAndPilotChains(t *testing.T) {
	pilot := func(ctx context.Context, s anneal.Geometric) (float64, error) {
		c := cfg.New(cfg.Options{Energy: overlapEnergy()})
		scheme := &Scheme{
			Proposer:    allKernels(t),
			Schedule:    s,
			Termination: term.MaxIterations(30),
		}
		res, err := scheme.FindOptimum(ctx, c, rng.New(11))
		if err != nil {
			return 0, err
		}
		return res.FinalEnergy, nil
	}
	tu := DefaultTuner(NewMayfly(2, 20, 5), pilot)
	res, err := tu.Tune(context.Background())
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if res.Evaluations == 0 || math.IsInf(res.Energy, 0) {
		t.Errorf("Unexpected result %+v", res)
	}
	if err := res.Schedule.Validate(); err != nil {
		t.Errorf("Tuned schedule invalid: %v", err)
	}
}

func TestTuner_FatalPilotError(t *testing.T) {
	calls := 0
	pilot := func(context.Context, anneal.Geometric) (float64, error) {
		calls++
		return 0, energy.Unrecoverable(errors.New("broken"))
	}
	tu := DefaultTuner(gridOptimizer{points: [][]float64{{0, 0}, {1, 1}}}, pilot)
	if _, err := tu.Tune(context.Background()); !errors.Is(err, energy.ErrUnrecoverable) {
		t.Errorf("Expected ErrUnrecoverable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Pilots should stop after a fatal error, got %d calls", calls)
	}
}

func TestTuner_AllPilotsFail(t *testing.T) {
	pilot := func(context.Context, anneal.Geometric) (float64, error) {
		return 0, errors.New("no samples")
	}
	tu := DefaultTuner(gridOptimizer{points: [][]float64{{0.5, 0.5}}}, pilot)
	if _, err := tu.Tune(context.Background()); err == nil {
		t.Error("Expected an error when no pilot succeeds")
	}
}

func TestTuner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tu := DefaultTuner(gridOptimizer{points: [][]float64{{0.5, 0.5}}}, func(context.Context, anneal.Geometric) (float64, error) {
		return 0, nil
	})
	if _, err := tu.Tune(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
