// Package energy defines the energy terms minimized by the optimizer and the
// generation-stamped cache that keeps each term computed at most once per
// mark value.
//
// The total energy of a configuration is
//
//	E = Σ Unary(m) + Σ Binary(a, b)
//
// where the binary sum runs over every unordered pair of marks whose
// bounding boxes intersect. Functions must be pure given the Context: the
// cache relies on a term never changing while the contributing marks keep
// their generation stamps.
package energy

import (
	"errors"
	"fmt"

	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
)

// ErrUnrecoverable marks an energy error that must abort the run instead of
// rejecting the single proposal that triggered it.
var ErrUnrecoverable = errors.New("unrecoverable energy error")

// Unrecoverable wraps err so that errors.Is(err, ErrUnrecoverable) holds.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}

// ErrNoSamples is returned by data terms when a mark covers no voxels of a
// region they need. It only rejects the proposal.
var ErrNoSamples = errors.New("mark covers no image samples")

// Function evaluates unary and binary energy terms.
type Function interface {
	Unary(m mark.Mark, ctx *Context) (float64, error)
	Binary(a, b mark.Mark, ctx *Context) (float64, error)
}

// Context carries the read-only data shared by every evaluation of a run.
type Context struct {
	// Domain is the region marks may occupy.
	Domain geom.Box
	// Stack is the preprocessed image, nil for purely geometric energies.
	Stack *Stack
}

// Constant assigns fixed values to every mark and every intersecting pair.
type Constant struct {
	UnaryValue  float64 `json:"unary" yaml:"unary"`
	BinaryValue float64 `json:"binary" yaml:"binary"`
}

func (c Constant) Unary(mark.Mark, *Context) (float64, error) {
	return c.UnaryValue, nil
}

func (c Constant) Binary(mark.Mark, mark.Mark, *Context) (float64, error) {
	return c.BinaryValue, nil
}

// Overlap penalizes intersecting marks by the fraction of the smaller
// bounding box covered by the intersection, scaled by Weight.
type Overlap struct {
	Weight float64 `json:"weight" yaml:"weight"`
}

func (Overlap) Unary(mark.Mark, *Context) (float64, error) {
	return 0, nil
}

func (o Overlap) Binary(a, b mark.Mark, _ *Context) (float64, error) {
	ba, bb := a.Bounds(), b.Bounds()
	inter, ok := ba.Intersection(bb)
	if !ok {
		return 0, nil
	}
	smaller := min(ba.Volume(), bb.Volume())
	if smaller <= 0 {
		return 0, fmt.Errorf("overlap of marks %d and %d: zero-volume bounds", a.ID(), b.ID())
	}
	return o.Weight * inter.Volume() / smaller, nil
}

// Weighted pairs a function with a multiplier.
type Weighted struct {
	Weight   float64
	Function Function
}

// Sum adds weighted terms. An error from any term aborts the evaluation.
type Sum []Weighted

func (s Sum) Unary(m mark.Mark, ctx *Context) (float64, error) {
	var total float64
	for i, t := range s {
		v, err := t.Function.Unary(m, ctx)
		if err != nil {
			return 0, fmt.Errorf("term %d: %w", i, err)
		}
		total += t.Weight * v
	}
	return total, nil
}

func (s Sum) Binary(a, b mark.Mark, ctx *Context) (float64, error) {
	var total float64
	for i, t := range s {
		v, err := t.Function.Binary(a, b, ctx)
		if err != nil {
			return 0, fmt.Errorf("term %d: %w", i, err)
		}
		total += t.Weight * v
	}
	return total, nil
}

// Func adapts plain functions. A nil field contributes zero.
type Func struct {
	UnaryFunc  func(m mark.Mark, ctx *Context) (float64, error)
	BinaryFunc func(a, b mark.Mark, ctx *Context) (float64, error)
}

func (f Func) Unary(m mark.Mark, ctx *Context) (float64, error) {
	if f.UnaryFunc == nil {
		return 0, nil
	}
	return f.UnaryFunc(m, ctx)
}

func (f Func) Binary(a, b mark.Mark, ctx *Context) (float64, error) {
	if f.BinaryFunc == nil {
		return 0, nil
	}
	return f.BinaryFunc(a, b, ctx)
}
