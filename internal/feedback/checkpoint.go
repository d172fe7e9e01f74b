package feedback

import (
	"log/slog"
	"sync"

	"github.com/cwbudde/markedpoint/internal/store"
)

// Checkpointer saves the configuration to a store every Every non-null
// iterations and once more when the run completes. Save failures are logged
// and never stop the run.
type Checkpointer struct {
	Store  store.Store
	JobID  string
	Every  int
	Config store.JobConfig

	// InitialEnergy is recorded in periodic checkpoints.
	InitialEnergy float64
	// IterationOffset is added to event iterations, for resumed runs.
	IterationOffset int

	mu    sync.Mutex
	saved int
	err   error
}

func (c *Checkpointer) WantsSnapshot(iteration int) bool {
	return c.Every > 0 && iteration > 0 && iteration%c.Every == 0
}

func (c *Checkpointer) OnIteration(ev Event) {
	if ev.Marks == nil || !c.WantsSnapshot(ev.Iteration) {
		return
	}
	cp := store.NewCheckpoint(c.JobID, ev.Marks, ev.Energy, c.InitialEnergy, ev.BestEnergy,
		c.IterationOffset+ev.Iteration, ev.Generation, c.Config)
	c.save(cp)
}

func (c *Checkpointer) OnComplete(s Summary) {
	if s.Marks == nil {
		return
	}
	initial := s.InitialEnergy
	if c.IterationOffset > 0 {
		// A resumed run keeps the energy the original run started from.
		initial = c.InitialEnergy
	}
	cp := store.NewCheckpoint(c.JobID, s.Marks, s.FinalEnergy, initial, s.BestEnergy,
		c.IterationOffset+s.Iterations, s.Generation, c.Config)
	c.save(cp)
}

// Saved returns the number of checkpoints written.
func (c *Checkpointer) Saved() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved
}

// Err returns the last save error, if any.
func (c *Checkpointer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Checkpointer) save(cp *store.Checkpoint) {
	err := c.Store.SaveCheckpoint(c.JobID, cp)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.err = err
		slog.Error("Failed to save checkpoint", "job_id", c.JobID, "error", err)
		return
	}
	c.saved++
	slog.Info("Checkpoint saved",
		"job_id", c.JobID,
		"iteration", cp.Iteration,
		"energy", cp.Energy,
		"marks", len(cp.Marks),
	)
}
