package feedback

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the event buffer size used by NewAsync when none is given.
const DefaultBuffer = 1024

// Async hands events to a wrapped receiver on its own goroutine. When the
// buffer is full, iteration events are dropped and counted; the loop never
// blocks on a slow receiver. The completion summary is always delivered.
type Async struct {
	next    Receiver
	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	summary Summary
}

// NewAsync starts the delivery goroutine. Close must be called to stop it.
func NewAsync(next Receiver, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	a := &Async{
		next:   next,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		a.next.OnIteration(ev)
	}
	a.next.OnComplete(a.summary)
}

func (a *Async) OnIteration(ev Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

// OnComplete queues the summary behind the buffered events. Events arriving
// afterwards are dropped.
func (a *Async) OnComplete(s Summary) {
	a.finish(&s)
}

func (a *Async) finish(s *Summary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if s != nil {
		a.summary = *s
	}
	a.closed = true
	close(a.events)
}

func (a *Async) WantsSnapshot(iteration int) bool {
	return WantsSnapshot(a.next, iteration)
}

// Close waits until every queued event and the summary have been delivered.
// Without a prior OnComplete the wrapped receiver sees an empty summary.
func (a *Async) Close() {
	a.finish(nil)
	<-a.done
}

// Dropped returns the number of discarded events.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}
