// Package pipeline turns a run configuration into wired components and runs
// them: single chains, parallel independent chains, schedule tuning and
// resumption from checkpoints.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/cwbudde/markedpoint/internal/anneal"
	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/energy"
	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/kernel"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/term"
)

// Components are the immutable parts of a run shared by all its chains.
// Everything mutable (configuration, cache, proposer counters, plateau
// state) is created per chain.
type Components struct {
	Config  config.RunConfig
	Prior   kernel.Prior
	Energy  energy.Function
	Context *energy.Context
}

// Build validates c, loads the image stack if one is configured and
// assembles the energy and prior.
func Build(c config.RunConfig) (*Components, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ectx := &energy.Context{}
	if len(c.Image.Paths) > 0 {
		images, err := LoadImages(c.Image.Paths)
		if err != nil {
			return nil, err
		}
		ectx, err = energy.NewImageContext(images, c.Image.Sigma)
		if err != nil {
			return nil, fmt.Errorf("build image context: %w", err)
		}
		slog.Info("Loaded image stack",
			"slices", ectx.Stack.Depth(),
			"width", ectx.Stack.Width,
			"height", ectx.Stack.Height,
		)
	}
	if !c.Domain.IsZero() {
		ectx.Domain = geom.Box{
			Min: r3.Vec{X: c.Domain.Min[0], Y: c.Domain.Min[1], Z: c.Domain.Min[2]},
			Max: r3.Vec{X: c.Domain.Max[0], Y: c.Domain.Max[1], Z: c.Domain.Max[2]},
		}
	}

	prior := kernel.Prior{
		Kind:      mark.Kind(c.Marks.Kind),
		Domain:    ectx.Domain,
		MinRadius: c.Marks.MinRadius,
		MaxRadius: c.Marks.MaxRadius,
		Regions:   c.Marks.RegionMap(),
	}
	if err := prior.Validate(); err != nil {
		return nil, fmt.Errorf("build prior: %w", err)
	}

	return &Components{
		Config:  c,
		Prior:   prior,
		Energy:  BuildEnergy(c.Energy),
		Context: ectx,
	}, nil
}

// LoadImages opens the slices of an image stack.
func LoadImages(paths []string) ([]image.Image, error) {
	images := make([]image.Image, len(paths))
	for i, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open image %s: %w", p, err)
		}
		images[i] = img
	}
	return images, nil
}

// BuildEnergy returns the weighted sum of the configured terms.
func BuildEnergy(e config.EnergyConfig) energy.Function {
	sum := make(energy.Sum, 0, len(e.Terms))
	for _, t := range e.Terms {
		var fn energy.Function
		switch t.Type {
		case config.EnergyConstant:
			fn = energy.Constant{UnaryValue: t.Unary, BinaryValue: t.Binary}
		case config.EnergyOverlap:
			fn = energy.Overlap{Weight: 1}
		case config.EnergyContrast:
			fn = energy.Contrast{Threshold: t.Threshold, Weight: 1}
		}
		sum = append(sum, energy.Weighted{Weight: t.Weight, Function: fn})
	}
	return sum
}

// NewProposer creates a proposer with fresh decline counters.
func (cp *Components) NewProposer() (*kernel.Proposer, error) {
	list := make([]kernel.Weighted, len(cp.Config.Kernels))
	for i, k := range cp.Config.Kernels {
		var kn kernel.Kernel
		switch k.Type {
		case config.KernelBirth:
			kn = kernel.Birth{Prior: cp.Prior}
		case config.KernelDeath:
			kn = kernel.Death{Prior: cp.Prior}
		case config.KernelMove:
			kn = kernel.Move{MaxShift: k.MaxShift, Domain: cp.Prior.Domain}
		case config.KernelDilate:
			kn = kernel.Dilate{
				MaxLogScale: k.MaxLogScale,
				MinRadius:   cp.Prior.MinRadius,
				MaxRadius:   cp.Prior.MaxRadius,
			}
		case config.KernelExchange:
			kn = kernel.Exchange{Prior: cp.Prior, Jitter: k.Jitter}
		default:
			return nil, fmt.Errorf("unknown kernel %q", k.Type)
		}
		list[i] = kernel.Weighted{Kernel: kn, Weight: k.Weight}
	}
	return kernel.NewProposer(list, 0)
}

// Schedule returns the configured annealing schedule.
func (cp *Components) Schedule() anneal.Schedule {
	s := cp.Config.Schedule
	switch s.Type {
	case config.ScheduleConstant:
		return anneal.Constant(s.Initial)
	case config.ScheduleLogarithmic:
		return anneal.Logarithmic{Initial: s.Initial}
	default:
		return anneal.Geometric{Initial: s.Initial, Rate: s.Rate, Floor: s.Floor}
	}
}

// Termination returns a fresh stop condition: the iteration budget plus
// whichever optional limits are configured, and stop if set.
func (cp *Components) Termination(stop *term.Flag) term.Condition {
	t := cp.Config.Termination
	conds := []term.Condition{term.MaxIterations(t.MaxIterations)}
	if t.MaxSize > 0 {
		conds = append(conds, term.MaxSize(t.MaxSize))
	}
	if d, _ := t.Duration(); d > 0 {
		conds = append(conds, term.NewDeadline(d))
	}
	if t.Plateau.Patience > 0 {
		conds = append(conds, term.NewPlateau(t.Plateau.Patience, t.Plateau.MinImprovement, t.Plateau.Window))
	}
	if stop != nil {
		conds = append(conds, stop)
	}
	return term.All(conds...)
}

// NewConfiguration creates a configuration holding initial, which may be empty.
func (cp *Components) NewConfiguration(ctx context.Context, initial []mark.Mark) (*cfg.Configuration, error) {
	opts := cfg.Options{Energy: cp.Energy, Context: cp.Context, CacheSize: cp.Config.Cache.Size}
	if len(initial) == 0 {
		return cfg.New(opts), nil
	}
	return cfg.FromMarks(ctx, initial, opts)
}
