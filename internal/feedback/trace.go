package feedback

import (
	"log/slog"
	"sync"

	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/store"
)

// Trace appends events to a JSONL trace. Every thins the entries (0 or 1
// records every iteration, null ones included); SnapshotEvery attaches the
// marks to every n-th non-null iteration.
type Trace struct {
	Writer        *store.TraceWriter
	Every         int
	SnapshotEvery int

	mu  sync.Mutex
	err error
}

// NewTrace wraps w.
func NewTrace(w *store.TraceWriter, every, snapshotEvery int) *Trace {
	return &Trace{Writer: w, Every: every, SnapshotEvery: snapshotEvery}
}

func (t *Trace) WantsSnapshot(iteration int) bool {
	return t.SnapshotEvery > 0 && iteration > 0 && iteration%t.SnapshotEvery == 0
}

func (t *Trace) OnIteration(ev Event) {
	if t.Every > 1 && (ev.Null || ev.Iteration%t.Every != 0) {
		return
	}
	entry := store.TraceEntry{
		Iteration:   ev.Iteration,
		Step:        ev.Step,
		Kernel:      ev.Kernel,
		Accepted:    ev.Accepted,
		Failed:      ev.Failed,
		Energy:      ev.Energy,
		Temperature: ev.Temperature,
		Size:        ev.Size,
		Timestamp:   ev.Time,
	}
	if ev.Marks != nil {
		entry.Marks = mark.Records(ev.Marks)
	}
	if err := t.Writer.Write(entry); err != nil {
		t.record(err)
	}
}

// OnComplete flushes the trace. The writer stays open; its owner closes it.
func (t *Trace) OnComplete(Summary) {
	if err := t.Writer.Flush(); err != nil {
		t.record(err)
	}
}

// Err returns the first write error, if any.
func (t *Trace) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Trace) record(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
		slog.Warn("Failed to write trace", "path", t.Writer.Path(), "error", err)
	}
}
