package opt

// Optimizer minimizes a black-box objective over a box.
type Optimizer interface {
	// Run minimizes eval within [lower, upper]; the dimension is len(lower).
	// It returns the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
