// Package kernel implements the randomized structural proposals of the
// optimizer and the weighted selection between them.
//
// Kernels never modify the configuration. A kernel that cannot produce a
// valid proposal (empty configuration, degenerate sample, center outside the
// domain) declines by returning false.
package kernel

import (
	"math"

	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/rng"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kernel names.
const (
	NameBirth    = "birth"
	NameDeath    = "death"
	NameMove     = "move"
	NameDilate   = "dilate"
	NameExchange = "exchange"
)

// Proposal is a candidate change with the log densities of proposing it and
// of proposing its reverse.
type Proposal struct {
	Kernel     string
	Delta      cfg.Delta
	LogForward float64
	LogReverse float64
}

// LogHastings returns log q(reverse) - log q(forward).
func (p Proposal) LogHastings() float64 {
	return p.LogReverse - p.LogForward
}

// Kernel proposes changes to a configuration.
type Kernel interface {
	Name() string
	Propose(c *cfg.Configuration, r rng.Source) (Proposal, bool)
}

func pick(c *cfg.Configuration, r rng.Source) (mark.Mark, bool) {
	n := c.Len()
	if n == 0 {
		return nil, false
	}
	return c.At(r.IntN(n)), true
}

// Birth adds a mark drawn from the prior.
type Birth struct {
	Prior Prior
}

func (Birth) Name() string { return NameBirth }

func (k Birth) Propose(c *cfg.Configuration, r rng.Source) (Proposal, bool) {
	m := k.Prior.Sample(r).WithID(c.NextID())
	if m.Degenerate() || !k.Prior.InDomain(m) {
		return Proposal{}, false
	}
	return Proposal{
		Kernel:     NameBirth,
		Delta:      cfg.Delta{Added: []mark.Mark{m}},
		LogForward: -k.Prior.LogVolume(),
		LogReverse: -math.Log(float64(c.Len() + 1)),
	}, true
}

// Death removes a uniformly chosen mark.
type Death struct {
	Prior Prior
}

func (Death) Name() string { return NameDeath }

func (k Death) Propose(c *cfg.Configuration, r rng.Source) (Proposal, bool) {
	m, ok := pick(c, r)
	if !ok {
		return Proposal{}, false
	}
	return Proposal{
		Kernel:     NameDeath,
		Delta:      cfg.Delta{Removed: []mark.ID{m.ID()}},
		LogForward: -math.Log(float64(c.Len())),
		LogReverse: -k.Prior.LogVolume(),
	}, true
}

// Move translates a uniformly chosen mark by up to MaxShift per axis.
// Two-dimensional marks stay in their slice.
type Move struct {
	MaxShift float64
	Domain   geom.Box
}

func (Move) Name() string { return NameMove }

func (k Move) Propose(c *cfg.Configuration, r rng.Source) (Proposal, bool) {
	m, ok := pick(c, r)
	if !ok || !(k.MaxShift > 0) {
		return Proposal{}, false
	}
	shift := distuv.Uniform{Min: -k.MaxShift, Max: k.MaxShift, Src: r}
	d := r3.Vec{X: shift.Rand(), Y: shift.Rand()}
	if m.Kind() != mark.KindEllipse {
		d.Z = shift.Rand()
	}
	moved := m.Translated(d)
	if !k.Domain.Contains(moved.Center()) {
		return Proposal{}, false
	}
	return Proposal{
		Kernel: NameMove,
		Delta:  cfg.Delta{Removed: []mark.ID{m.ID()}, Added: []mark.Mark{moved}},
	}, true
}

// Dilate scales a uniformly chosen mark by exp(U(-MaxLogScale, MaxLogScale)).
// When MaxRadius is set, scalings that leave any radius outside
// [MinRadius, MaxRadius] are declined, keeping dilated marks inside the
// support of the birth prior.
type Dilate struct {
	MaxLogScale float64
	MinRadius   float64
	MaxRadius   float64
}

func (Dilate) Name() string { return NameDilate }

func (k Dilate) Propose(c *cfg.Configuration, r rng.Source) (Proposal, bool) {
	m, ok := pick(c, r)
	if !ok || !(k.MaxLogScale > 0) {
		return Proposal{}, false
	}
	s := distuv.Uniform{Min: -k.MaxLogScale, Max: k.MaxLogScale, Src: r}.Rand()
	scaled := m.Scaled(math.Exp(s))
	if scaled.Degenerate() {
		return Proposal{}, false
	}
	radii := radiiOf(scaled)
	if k.MaxRadius > 0 {
		for _, v := range radii {
			if v < k.MinRadius || v > k.MaxRadius {
				return Proposal{}, false
			}
		}
	}
	// The log scale is symmetric; the Jacobian of scaling every radius
	// by exp(s) is exp(len(radii) * s).
	return Proposal{
		Kernel:     NameDilate,
		Delta:      cfg.Delta{Removed: []mark.ID{m.ID()}, Added: []mark.Mark{scaled}},
		LogReverse: float64(len(radii)) * s,
	}, true
}

// radiiOf returns the scalable shape parameters of m. Point clouds have none.
func radiiOf(m mark.Mark) []float64 {
	switch v := m.(type) {
	case mark.Ellipse:
		a, b := v.Axes()
		return []float64{a, b}
	case mark.Ellipsoid:
		r := v.Radii()
		return []float64{r.X, r.Y, r.Z}
	}
	return nil
}

// Exchange replaces a uniformly chosen mark with a fresh prior sample near
// the same center. The number of marks is unchanged.
type Exchange struct {
	Prior  Prior
	Jitter float64
}

func (Exchange) Name() string { return NameExchange }

func (k Exchange) Propose(c *cfg.Configuration, r rng.Source) (Proposal, bool) {
	m, ok := pick(c, r)
	if !ok {
		return Proposal{}, false
	}
	center := m.Center()
	if k.Jitter > 0 {
		jitter := distuv.Uniform{Min: -k.Jitter, Max: k.Jitter, Src: r}
		center.X += jitter.Rand()
		center.Y += jitter.Rand()
		if k.Prior.Kind == mark.KindEllipsoid {
			center.Z += jitter.Rand()
		}
	}
	repl := k.Prior.Shape(center, r).WithID(c.NextID())
	if repl.Degenerate() || !k.Prior.InDomain(repl) {
		return Proposal{}, false
	}
	return Proposal{
		Kernel: NameExchange,
		Delta:  cfg.Delta{Removed: []mark.ID{m.ID()}, Added: []mark.Mark{repl}},
	}, true
}
