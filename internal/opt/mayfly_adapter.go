package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population mayfly accepts.
const MinPopulation = 20

// MayflyAdapter runs the Mayfly metaheuristic behind the Optimizer interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a Mayfly optimizer. Populations below MinPopulation are raised to it.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the optimization. Mayfly takes scalar bounds, so every
// dimension must share the same range.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("bounds must be non-empty and of equal length, got %d and %d", len(lower), len(upper))
	}
	for i := 1; i < dim; i++ {
		if lower[i] != lower[0] || upper[i] != upper[0] {
			return nil, 0, fmt.Errorf("dimension %d: mayfly needs uniform bounds", i)
		}
	}
	if !(upper[0] > lower[0]) {
		return nil, 0, fmt.Errorf("empty range [%g, %g]", lower[0], upper[0])
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
