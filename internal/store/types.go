package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/markedpoint/internal/mark"
)

// JobConfig is the part of a run configuration recorded with a checkpoint.
// It is a flat copy so the store does not depend on the config package.
type JobConfig struct {
	ImagePath       string `json:"imagePath,omitempty"`
	MarkKind        string `json:"markKind"`
	Energy          string `json:"energy"`
	Iterations      int    `json:"iterations"`
	Seed            uint64 `json:"seed"`
	Chains          int    `json:"chains,omitempty"`
	CheckpointEvery int    `json:"checkpointEvery,omitempty"` // iterations, 0 = final only
}

// Checkpoint is a saved configuration that a later run can resume from.
//
// Only the marks are saved. Kernel retry counters, the annealing position and
// the energy cache are rebuilt on resume; the cache is refilled by the
// initial energy computation and the schedule restarts at Iteration so
// temperatures continue where they left off.
type Checkpoint struct {
	// JobID is the unique identifier of the run.
	JobID string `json:"jobId"`

	// Marks is the configuration in export order.
	Marks []mark.Record `json:"marks"`

	// Energy is the configuration energy at checkpoint time.
	Energy float64 `json:"energy"`

	// InitialEnergy is the energy the run started from.
	InitialEnergy float64 `json:"initialEnergy"`

	// BestEnergy is the lowest energy the run has seen.
	BestEnergy float64 `json:"bestEnergy"`

	// Iteration counts non-null iterations completed.
	Iteration int `json:"iteration"`

	// Generation is the configuration generation.
	Generation uint64 `json:"generation"`

	// Timestamp records when the checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config is checked on resume so incompatible runs are refused.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the marks.
type CheckpointInfo struct {
	JobID     string    `json:"jobId"`
	Energy    float64   `json:"energy"`
	Iteration int       `json:"iteration"`
	Marks     int       `json:"marks"`
	Timestamp time.Time `json:"timestamp"`
	MarkKind  string    `json:"markKind"`
	ImagePath string    `json:"imagePath,omitempty"`
}

// NewCheckpoint creates a checkpoint from run state.
func NewCheckpoint(jobID string, marks []mark.Mark, energy, initialEnergy, bestEnergy float64, iteration int, generation uint64, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:         jobID,
		Marks:         mark.Records(marks),
		Energy:        energy,
		InitialEnergy: initialEnergy,
		BestEnergy:    bestEnergy,
		Iteration:     iteration,
		Generation:    generation,
		Timestamp:     time.Now(),
		Config:        config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:     c.JobID,
		Energy:    c.Energy,
		Iteration: c.Iteration,
		Marks:     len(c.Marks),
		Timestamp: c.Timestamp,
		MarkKind:  c.Config.MarkKind,
		ImagePath: c.Config.ImagePath,
	}
}

// MarkValues decodes the saved marks.
func (c *Checkpoint) MarkValues() ([]mark.Mark, error) {
	return mark.FromRecords(c.Marks)
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Marks == nil {
		return &ValidationError{Field: "Marks", Reason: "cannot be nil"}
	}
	seen := make(map[mark.ID]struct{}, len(c.Marks))
	for i, r := range c.Marks {
		if r.ID == 0 {
			return &ValidationError{Field: fmt.Sprintf("Marks[%d].ID", i), Reason: "cannot be zero"}
		}
		if _, dup := seen[r.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("Marks[%d].ID", i), Reason: fmt.Sprintf("duplicate id %d", r.ID)}
		}
		seen[r.ID] = struct{}{}
		if _, err := r.Mark(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("Marks[%d]", i), Reason: err.Error()}
		}
	}
	for field, v := range map[string]float64{"Energy": c.Energy, "InitialEnergy": c.InitialEnergy, "BestEnergy": c.BestEnergy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: field, Reason: "must be finite"}
		}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.MarkKind == "" {
		return &ValidationError{Field: "Config.MarkKind", Reason: "cannot be empty"}
	}
	if c.Config.Energy == "" {
		return &ValidationError{Field: "Config.Energy", Reason: "cannot be empty"}
	}
	if c.Config.Iterations <= 0 {
		return &ValidationError{Field: "Config.Iterations", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.ImagePath != config.ImagePath {
		return &CompatibilityError{Field: "ImagePath", Expected: c.Config.ImagePath, Actual: config.ImagePath}
	}
	if c.Config.MarkKind != config.MarkKind {
		return &CompatibilityError{Field: "MarkKind", Expected: c.Config.MarkKind, Actual: config.MarkKind}
	}
	if c.Config.Energy != config.Energy {
		return &CompatibilityError{Field: "Energy", Expected: c.Config.Energy, Actual: config.Energy}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
