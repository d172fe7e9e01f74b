// Package feedback delivers per-iteration progress of an optimization run to
// observers: loggers, traces, metrics, checkpointers and the job server.
//
// Receivers are called synchronously from the optimization loop. Anything
// slow belongs behind Async, which decouples the loop from the receiver.
package feedback

import (
	"time"

	"github.com/cwbudde/markedpoint/internal/energy"
	"github.com/cwbudde/markedpoint/internal/mark"
)

// Event describes one iteration.
type Event struct {
	// Iteration counts non-null iterations; Step counts all of them.
	Iteration int
	Step      int

	// Kernel is empty when Null is set.
	Kernel   string
	Null     bool
	Accepted bool
	// Failed is set when the candidate energy could not be evaluated.
	Failed bool

	Energy      float64
	BestEnergy  float64
	Temperature float64
	Size        int
	Generation  uint64
	Cache       energy.Stats
	Time        time.Time

	// Marks is filled only for receivers that asked for a snapshot.
	Marks []mark.Mark
}

// Summary describes a finished run.
type Summary struct {
	Iterations     int
	NullIterations int
	Accepted       int
	Rejected       int
	Failed         int
	InitialEnergy  float64
	FinalEnergy    float64
	BestEnergy     float64
	Generation     uint64
	Elapsed        time.Duration
	Reason         string
	// Err is set when the run aborted.
	Err   error
	Marks []mark.Mark
}

// Receiver observes a run.
type Receiver interface {
	OnIteration(ev Event)
	OnComplete(s Summary)
}

// Snapshotter is implemented by receivers that need the marks of some
// iterations. The optimizer fills Event.Marks when WantsSnapshot returns true.
type Snapshotter interface {
	WantsSnapshot(iteration int) bool
}

// WantsSnapshot reports whether r asks for a snapshot at iteration.
func WantsSnapshot(r Receiver, iteration int) bool {
	s, ok := r.(Snapshotter)
	return ok && s.WantsSnapshot(iteration)
}

// Nop ignores everything.
type Nop struct{}

func (Nop) OnIteration(Event)  {}
func (Nop) OnComplete(Summary) {}

// Func adapts plain functions. Nil fields are skipped.
type Func struct {
	Iteration func(Event)
	Complete  func(Summary)
}

func (f Func) OnIteration(ev Event) {
	if f.Iteration != nil {
		f.Iteration(ev)
	}
}

func (f Func) OnComplete(s Summary) {
	if f.Complete != nil {
		f.Complete(s)
	}
}

// Multi forwards to several receivers in order.
type Multi []Receiver

func (m Multi) OnIteration(ev Event) {
	for _, r := range m {
		if ev.Marks != nil && !WantsSnapshot(r, ev.Iteration) {
			stripped := ev
			stripped.Marks = nil
			r.OnIteration(stripped)
			continue
		}
		r.OnIteration(ev)
	}
}

func (m Multi) OnComplete(s Summary) {
	for _, r := range m {
		r.OnComplete(s)
	}
}

func (m Multi) WantsSnapshot(iteration int) bool {
	for _, r := range m {
		if WantsSnapshot(r, iteration) {
			return true
		}
	}
	return false
}
