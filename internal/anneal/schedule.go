// Package anneal provides temperature schedules and the Metropolis-Hastings
// acceptance test.
package anneal

import (
	"fmt"
	"math"
)

// Schedule maps an iteration to a temperature. Implementations are monotone
// non-increasing in the iteration.
type Schedule interface {
	Temperature(iteration int) float64
}

// Constant keeps the temperature fixed. A zero Constant gives greedy descent.
type Constant float64

func (c Constant) Temperature(int) float64 {
	return float64(c)
}

// Geometric cools as Initial·Rate^k, never below Floor.
type Geometric struct {
	Initial float64
	Rate    float64
	Floor   float64
}

func (g Geometric) Temperature(k int) float64 {
	return math.Max(g.Floor, g.Initial*math.Pow(g.Rate, float64(k)))
}

// Validate checks that the schedule is monotone.
func (g Geometric) Validate() error {
	if g.Initial < 0 || g.Floor < 0 {
		return fmt.Errorf("geometric schedule temperatures must be non-negative")
	}
	if g.Rate <= 0 || g.Rate > 1 {
		return fmt.Errorf("geometric rate must be in (0,1], got %g", g.Rate)
	}
	return nil
}

// Logarithmic cools as Initial / ln(e + k), the classical schedule with
// convergence guarantees.
type Logarithmic struct {
	Initial float64
}

func (l Logarithmic) Temperature(k int) float64 {
	return l.Initial / math.Log(math.E+float64(k))
}

// Annealer wraps a schedule and remembers the last temperature it handed out.
type Annealer struct {
	schedule  Schedule
	iteration int
	current   float64
}

// NewAnnealer returns an annealer positioned at iteration zero.
func NewAnnealer(s Schedule) *Annealer {
	return &Annealer{schedule: s, current: s.Temperature(0)}
}

// Temperature returns the temperature for iteration k.
func (a *Annealer) Temperature(k int) float64 {
	if k != a.iteration {
		a.iteration = k
		a.current = a.schedule.Temperature(k)
	}
	return a.current
}

// Current returns the last computed temperature.
func (a *Annealer) Current() float64 {
	return a.current
}

// Accept decides a proposal moving the energy from before to after.
// Downhill moves are always accepted. At non-positive temperature uphill
// and flat moves are rejected. Otherwise the move is accepted when
// u < min(1, exp((before-after)/temperature + logHastings)), where u is
// the single uniform draw for this decision.
func Accept(before, after, logHastings, temperature, u float64) bool {
	if after < before {
		return true
	}
	if temperature <= 0 {
		return false
	}
	ratio := math.Exp((before-after)/temperature + logHastings)
	return u < math.Min(1, ratio)
}
