package util

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// NewRand creates a seeded random source. Every simulation and calibration
// call receives one of these explicitly; there is no package-level generator.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewNormal binds a standard normal sampler to the given source.
func NewNormal(rng *rand.Rand) distuv.Normal {
	return distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: rng}
}

// Normals draws n standard normal variates from the source.
func Normals(rng *rand.Rand, n int) []float64 {
	d := NewNormal(rng)
	z := make([]float64, n)
	for i := range z {
		z[i] = d.Rand()
	}
	return z
}

// NormalMatrix draws a steps x paths matrix of standard normal variates,
// row i holding the increments of time step i across all paths.
func NormalMatrix(rng *rand.Rand, steps, paths int) [][]float64 {
	d := NewNormal(rng)
	z := make([][]float64, steps)
	for i := range z {
		row := make([]float64, paths)
		for j := range row {
			row[j] = d.Rand()
		}
		z[i] = row
	}
	return z
}

// Increments holds the two independent Brownian increment matrices driving one
// maturity slice of a two-factor simulation, shaped steps x paths.
type Increments struct {
	Z0, Z1 [][]float64
}

// DrawIncrements samples fresh increments for a slice with the given grid size.
func DrawIncrements(rng *rand.Rand, steps, paths int) Increments {
	return Increments{
		Z0: NormalMatrix(rng, steps, paths),
		Z1: NormalMatrix(rng, steps, paths),
	}
}

// FrozenChain pre-generates increments for every slice of a maturity chain so
// repeated objective evaluations reuse the same randomness (common random
// numbers). stepsPerSlice holds the step count of each maturity gap.
func FrozenChain(rng *rand.Rand, stepsPerSlice []int, paths int) []Increments {
	out := make([]Increments, len(stepsPerSlice))
	for i, n := range stepsPerSlice {
		out[i] = DrawIncrements(rng, n, paths)
	}
	return out
}
