// Package mc simulates the log-normal stochastic volatility model by
// Monte-Carlo: a standard log-Euler scheme and a rough-kernel scheme with a
// Markovian sum-of-exponentials lift. Both produce terminal samples of the
// log-return, the volatility and the accumulated quadratic variation, which
// the payoff package turns into price estimates.
package mc

import (
	"fmt"
	"math"
)

// Defaults shared by the simulators.
const (
	DefaultStepsPerYear = 360
	DefaultPaths        = 100000
	DefaultKernelTol    = 1e-2
)

// TimeGrid discretizes one maturity gap into equal steps.
type TimeGrid struct {
	Steps int
	Dt    float64
}

// NewTimeGrid covers span with ceil(span*stepsPerYear) steps.
func NewTimeGrid(span float64, stepsPerYear int) (TimeGrid, error) {
	if !(span > 0.0) {
		return TimeGrid{}, fmt.Errorf("mc: time span must be positive, got %v", span)
	}
	if stepsPerYear <= 0 {
		return TimeGrid{}, fmt.Errorf("mc: steps per year must be positive, got %d", stepsPerYear)
	}
	n := int(math.Ceil(span * float64(stepsPerYear)))
	if n < 1 {
		n = 1
	}
	return TimeGrid{Steps: n, Dt: span / float64(n)}, nil
}

// Times is the grid 0, dt, ..., span.
func (g TimeGrid) Times() []float64 {
	out := make([]float64, g.Steps+1)
	for i := range out {
		out[i] = float64(i) * g.Dt
	}
	return out
}
