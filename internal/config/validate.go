package config

import (
	"fmt"
	"math"

	"github.com/cwbudde/markedpoint/internal/mark"
)

// ValidationError names the offending field using its YAML path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration and returns the first problem as a
// *ValidationError.
func (c RunConfig) Validate() error {
	if c.Chains < 1 {
		return invalid("chains", "must be at least 1, got %d", c.Chains)
	}
	if c.Image.Sigma < 0 {
		return invalid("image.sigma", "must be non-negative")
	}
	if len(c.Image.Paths) == 0 && c.Domain.IsZero() {
		return invalid("domain", "is required without an image")
	}
	if !c.Domain.IsZero() {
		for i, axis := range []string{"x", "y", "z"} {
			if !(c.Domain.Max[i] > c.Domain.Min[i]) {
				return invalid("domain", "is empty along %s", axis)
			}
		}
	}

	switch mark.Kind(c.Marks.Kind) {
	case mark.KindEllipse, mark.KindEllipsoid:
	default:
		return invalid("marks.kind", "must be %s or %s, got %q", mark.KindEllipse, mark.KindEllipsoid, c.Marks.Kind)
	}
	if !(c.Marks.MinRadius > 0) || c.Marks.MaxRadius < c.Marks.MinRadius {
		return invalid("marks.min_radius", "range [%g, %g] is invalid", c.Marks.MinRadius, c.Marks.MaxRadius)
	}
	if err := c.Marks.RegionMap().Validate(); err != nil {
		return invalid("marks", "%v", err)
	}

	if len(c.Kernels) == 0 {
		return invalid("kernels", "must not be empty")
	}
	for i, k := range c.Kernels {
		field := fmt.Sprintf("kernels[%d]", i)
		if !(k.Weight > 0) || math.IsInf(k.Weight, 0) {
			return invalid(field+".weight", "must be positive, got %g", k.Weight)
		}
		switch k.Type {
		case KernelBirth, KernelDeath:
		case KernelMove:
			if !(k.MaxShift > 0) {
				return invalid(field+".max_shift", "must be positive")
			}
		case KernelDilate:
			if !(k.MaxLogScale > 0) {
				return invalid(field+".max_log_scale", "must be positive")
			}
		case KernelExchange:
			if k.Jitter < 0 {
				return invalid(field+".jitter", "must be non-negative")
			}
		default:
			return invalid(field+".type", "unknown kernel %q", k.Type)
		}
	}

	switch c.Schedule.Type {
	case ScheduleConstant, ScheduleLogarithmic:
	case ScheduleGeometric:
		if c.Schedule.Rate <= 0 || c.Schedule.Rate > 1 {
			return invalid("schedule.rate", "must be in (0, 1], got %g", c.Schedule.Rate)
		}
	default:
		return invalid("schedule.type", "unknown schedule %q", c.Schedule.Type)
	}
	if c.Schedule.Initial < 0 || c.Schedule.Floor < 0 {
		return invalid("schedule", "temperatures must be non-negative")
	}

	t := c.Termination
	if t.MaxIterations < 1 {
		return invalid("termination.max_iterations", "must be at least 1, got %d", t.MaxIterations)
	}
	if t.MaxSize < 0 || t.MaxNullStreak < 0 {
		return invalid("termination", "limits must be non-negative")
	}
	if d, err := t.Duration(); err != nil || d < 0 {
		return invalid("termination.time_limit", "must be a non-negative duration, got %q", t.TimeLimit)
	}
	if t.Plateau.Patience < 0 || t.Plateau.Window < 0 || t.Plateau.MinImprovement < 0 {
		return invalid("termination.plateau", "values must be non-negative")
	}

	if c.Cache.Size < 0 {
		return invalid("cache.size", "must be non-negative")
	}

	if len(c.Energy.Terms) == 0 {
		return invalid("energy.terms", "must not be empty")
	}
	for i, term := range c.Energy.Terms {
		field := fmt.Sprintf("energy.terms[%d]", i)
		switch term.Type {
		case EnergyConstant, EnergyOverlap, EnergyContrast:
		default:
			return invalid(field+".type", "unknown energy %q", term.Type)
		}
		if math.IsNaN(term.Weight) || math.IsInf(term.Weight, 0) {
			return invalid(field+".weight", "must be finite")
		}
	}
	if c.Energy.NeedsImage() && len(c.Image.Paths) == 0 {
		return invalid("image.paths", "required by the contrast energy")
	}

	f := c.Feedback
	if f.LogEvery < 0 || f.TraceEvery < 0 || f.SnapshotEvery < 0 || f.CheckpointEvery < 0 || f.VerifyEvery < 0 {
		return invalid("feedback", "intervals must be non-negative")
	}

	switch c.Store.Backend {
	case BackendFS, BackendSQLite:
	default:
		return invalid("store.backend", "must be %s or %s, got %q", BackendFS, BackendSQLite, c.Store.Backend)
	}
	if c.Store.Path == "" {
		return invalid("store.path", "must not be empty")
	}
	return nil
}
