package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/markedpoint/internal/anneal"
	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/feedback"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/opt"
	"github.com/cwbudde/markedpoint/internal/rng"
	"github.com/cwbudde/markedpoint/internal/term"
)

// Options adjust a run without touching its configuration.
type Options struct {
	// Initial marks to start from, e.g. a resumed checkpoint.
	Initial []mark.Mark
	// StartIteration continues the annealing schedule of a resumed run.
	StartIteration int
	// Feedback returns the receiver of a chain; nil means none.
	Feedback func(chain int) feedback.Receiver
	// Stop ends every chain once set.
	Stop   *term.Flag
	Logger *slog.Logger
}

// ChainResult is the outcome of one chain.
type ChainResult struct {
	Chain  int
	Seed   uint64
	Result *opt.Result
}

// Run runs a single chain seeded with seed.
func Run(ctx context.Context, cp *Components, seed uint64, opts Options) (*opt.Result, error) {
	return runChain(ctx, cp, 0, seed, opts)
}

func runChain(ctx context.Context, cp *Components, chain int, seed uint64, opts Options) (*opt.Result, error) {
	c, err := cp.NewConfiguration(ctx, opts.Initial)
	if err != nil {
		return nil, fmt.Errorf("chain %d: initial configuration: %w", chain, err)
	}
	proposer, err := cp.NewProposer()
	if err != nil {
		return nil, fmt.Errorf("chain %d: %w", chain, err)
	}
	var fb feedback.Receiver
	if opts.Feedback != nil {
		fb = opts.Feedback(chain)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	scheme := &opt.Scheme{
		Proposer:       proposer,
		Schedule:       cp.Schedule(),
		Termination:    cp.Termination(opts.Stop),
		Feedback:       fb,
		MaxNullStreak:  cp.Config.Termination.MaxNullStreak,
		VerifyEvery:    cp.Config.Feedback.VerifyEvery,
		StartIteration: opts.StartIteration,
		Logger:         log.With("chain", chain, "seed", seed),
	}
	return scheme.FindOptimum(ctx, c, rng.New(seed))
}

// RunChains runs the configured number of independent chains in parallel,
// chain i seeded with Seed+i, and returns the chain with the lowest final
// energy first followed by all chains in index order. A fatal error in any
// chain cancels the others.
func RunChains(ctx context.Context, cp *Components, opts Options) (*ChainResult, []*ChainResult, error) {
	n := cp.Config.Chains
	results := make([]*ChainResult, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		seed := cp.Config.Seed + uint64(i)
		g.Go(func() error {
			res, err := runChain(gctx, cp, i, seed, opts)
			if err != nil {
				return err
			}
			results[i] = &ChainResult{Chain: i, Seed: seed, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.Result.FinalEnergy < best.Result.FinalEnergy {
			best = r
		}
	}
	if n > 1 {
		slog.Info("Chains finished", "chains", n, "best_chain", best.Chain, "best_energy", best.Result.FinalEnergy)
	}
	return best, results, nil
}

// TuneBudget sizes a tuning run.
type TuneBudget struct {
	// PilotIterations is the iteration budget of each pilot chain.
	PilotIterations int
	// Iterations and Population configure the Mayfly search.
	Iterations int
	Population int
}

// DefaultTuneBudget is small enough for interactive use.
func DefaultTuneBudget() TuneBudget {
	return TuneBudget{PilotIterations: 500, Iterations: 5, Population: opt.MinPopulation}
}

// Tune searches a geometric schedule for cp. Every pilot chain starts from
// the same seed so schedules are compared on equal footing.
func Tune(ctx context.Context, cp *Components, budget TuneBudget) (*opt.TuneResult, error) {
	if budget.PilotIterations < 1 || budget.Iterations < 1 {
		return nil, fmt.Errorf("tune budget must be positive, got %+v", budget)
	}
	pilotConfig := cp.Config
	pilotConfig.Termination.MaxIterations = budget.PilotIterations
	pilotConfig.Termination.Plateau.Patience = 0
	pilot := &Components{Config: pilotConfig, Prior: cp.Prior, Energy: cp.Energy, Context: cp.Context}
	quiet := slog.New(slog.DiscardHandler)

	run := func(ctx context.Context, s anneal.Geometric) (float64, error) {
		pc := *pilot
		pc.Config.Schedule.Type = config.ScheduleGeometric
		pc.Config.Schedule.Initial = s.Initial
		pc.Config.Schedule.Rate = s.Rate
		pc.Config.Schedule.Floor = s.Floor
		res, err := Run(ctx, &pc, cp.Config.Seed, Options{Logger: quiet})
		if err != nil {
			return math.Inf(1), err
		}
		return res.FinalEnergy, nil
	}

	tuner := opt.DefaultTuner(opt.NewMayfly(budget.Iterations, budget.Population, int64(cp.Config.Seed)), run)
	tuner.Floor = cp.Config.Schedule.Floor
	return tuner.Tune(ctx)
}
