// Package rng provides the seedable random source injected into the optimizer.
//
// Every run draws all of its randomness from one Source so that two runs with
// the same seed, initial configuration and energy make identical decisions.
package rng

import "math/rand/v2"

// Source is the randomness used by kernels, priors and the acceptance test.
// *rand.Rand from math/rand/v2 satisfies it, and because it includes Uint64
// it also satisfies rand.Source for gonum distributions.
type Source interface {
	Uint64() uint64
	Float64() float64
	NormFloat64() float64
	IntN(n int) int
}

// New returns a PCG-backed source for the given seed.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Derive returns the seed for chain i of a multi-chain run.
func Derive(seed uint64, chain int) uint64 {
	return seed + uint64(chain)
}
