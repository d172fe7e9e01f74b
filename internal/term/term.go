// Package term decides when an optimization run stops.
//
// A Condition is consulted after every non-null iteration with the number of
// such iterations completed so far, the current energy and the number of
// marks. Conditions may keep state and are owned by a single run, except
// Flag which is safe to set from any goroutine.
package term

import (
	"sync/atomic"
	"time"
)

// Condition reports whether the run should continue.
type Condition interface {
	Continue(iteration int, score float64, size int) bool
}

// MaxIterations continues while fewer than n iterations have completed.
type MaxIterations int

func (n MaxIterations) Continue(iteration int, _ float64, _ int) bool {
	return iteration < int(n)
}

// MaxSize continues while the configuration holds fewer than n marks.
type MaxSize int

func (n MaxSize) Continue(_ int, _ float64, size int) bool {
	return size < int(n)
}

// Deadline continues until a wall-clock instant.
type Deadline struct {
	At  time.Time
	now func() time.Time
}

// NewDeadline returns a condition that stops once d has elapsed from now.
func NewDeadline(d time.Duration) *Deadline {
	return &Deadline{At: time.Now().Add(d), now: time.Now}
}

func (d *Deadline) Continue(int, float64, int) bool {
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	return now().Before(d.At)
}

// Flag stops the run once Set has been called.
type Flag struct {
	stopped atomic.Bool
}

// Set requests termination.
func (f *Flag) Set() {
	f.stopped.Store(true)
}

// IsSet reports whether termination was requested.
func (f *Flag) IsSet() bool {
	return f.stopped.Load()
}

func (f *Flag) Continue(int, float64, int) bool {
	return !f.stopped.Load()
}

// Func adapts a plain function.
type Func func(iteration int, score float64, size int) bool

func (f Func) Continue(iteration int, score float64, size int) bool {
	return f(iteration, score, size)
}

type all []Condition

// All continues while every condition continues. Every condition is
// evaluated on each call so stateful conditions see every iteration.
func All(conds ...Condition) Condition {
	return all(conds)
}

func (a all) Continue(iteration int, score float64, size int) bool {
	ok := true
	for _, c := range a {
		if !c.Continue(iteration, score, size) {
			ok = false
		}
	}
	return ok
}

type anyOf []Condition

// Any continues while at least one condition continues. Every condition is
// evaluated on each call.
func Any(conds ...Condition) Condition {
	return anyOf(conds)
}

func (a anyOf) Continue(iteration int, score float64, size int) bool {
	ok := false
	for _, c := range a {
		if c.Continue(iteration, score, size) {
			ok = true
		}
	}
	return ok
}
