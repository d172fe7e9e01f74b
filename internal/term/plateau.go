package term

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Plateau stops a run whose smoothed energy has stopped improving.
//
// Scores are smoothed with a moving average over the last Window values.
// An iteration counts as progress when the smoothed score improves on the
// last significant one by at least MinImprovement, relative to
// max(1, |last significant|). After Patience consecutive iterations without
// progress the condition stops the run.
type Plateau struct {
	Patience       int
	MinImprovement float64
	Window         int

	window          []float64
	best            float64
	lastSignificant float64
	staleCount      int
	seen            int
}

// NewPlateau creates a plateau detector. A window below one is treated as one.
func NewPlateau(patience int, minImprovement float64, window int) *Plateau {
	p := &Plateau{Patience: patience, MinImprovement: minImprovement, Window: window}
	p.Reset()
	return p
}

// Continue records score and reports whether the run should go on.
func (p *Plateau) Continue(_ int, score float64, _ int) bool {
	if p.window == nil {
		p.Reset()
	}
	w := max(p.Window, 1)
	p.window = append(p.window, score)
	if len(p.window) > w {
		p.window = p.window[len(p.window)-w:]
	}
	p.seen++
	if score < p.best {
		p.best = score
	}

	avg := stat.Mean(p.window, nil)
	if p.seen == 1 {
		p.lastSignificant = avg
		return true
	}

	improvement := (p.lastSignificant - avg) / math.Max(1, math.Abs(p.lastSignificant))
	if improvement >= p.MinImprovement {
		p.lastSignificant = avg
		p.staleCount = 0
		slog.Debug("Energy improvement detected",
			"smoothed", avg,
			"relative_improvement", improvement,
		)
		return true
	}

	p.staleCount++
	if p.staleCount >= p.Patience {
		slog.Info("Energy plateau detected - stopping",
			"stale_count", p.staleCount,
			"patience", p.Patience,
			"best_energy", p.best,
		)
		return false
	}
	return true
}

// Best returns the lowest score seen.
func (p *Plateau) Best() float64 {
	return p.best
}

// StaleCount returns the number of consecutive iterations without progress.
func (p *Plateau) StaleCount() int {
	return p.staleCount
}

// Reset clears the tracked history.
func (p *Plateau) Reset() {
	p.window = make([]float64, 0, max(p.Window, 1))
	p.best = math.Inf(1)
	p.lastSignificant = math.Inf(1)
	p.staleCount = 0
	p.seen = 0
}
