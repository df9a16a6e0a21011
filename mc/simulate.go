package mc

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/util"
)

// State holds the running per-path variables of a simulation: the forward
// log-return, the instantaneous vol and the accumulated quadratic variation.
// A chain valuation threads one state through all maturity slices.
type State struct {
	X     []float64
	Sigma []float64
	I     []float64
}

// NewState starts every path at x = 0, sigma = sigma0, i = 0.
func NewState(p logsv.Params, paths int) State {
	st := State{
		X:     make([]float64, paths),
		Sigma: make([]float64, paths),
		I:     make([]float64, paths),
	}
	for j := range st.Sigma {
		st.Sigma[j] = p.Sigma0
	}
	return st
}

// Paths is the number of paths in the state.
func (st State) Paths() int {
	return len(st.X)
}

// Clone deep-copies the state, for per-maturity snapshots.
func (st State) Clone() State {
	return State{
		X:     append([]float64(nil), st.X...),
		Sigma: append([]float64(nil), st.Sigma...),
		I:     append([]float64(nil), st.I...),
	}
}

// Simulator runs the standard log-Euler scheme. The vol evolves in logs, so
// every simulated vol is strictly positive without clipping.
type Simulator struct {
	Params          logsv.Params
	Measure         logsv.Measure
	BackboneInDrift bool
	StepsPerYear    int
	Paths           int
}

// NewSimulator uses the spot measure and the source defaults.
func NewSimulator(p logsv.Params) Simulator {
	return Simulator{
		Params:          p,
		Measure:         logsv.Spot,
		BackboneInDrift: true,
		StepsPerYear:    DefaultStepsPerYear,
		Paths:           DefaultPaths,
	}
}

func (s Simulator) validate() error {
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("mc: %w", err)
	}
	if s.StepsPerYear <= 0 || s.Paths <= 0 {
		return fmt.Errorf("mc: steps per year and paths must be positive, got %d and %d", s.StepsPerYear, s.Paths)
	}
	return nil
}

// drift sign and inverse-measure adjustment for the given backbone level.
func (s Simulator) coeffs(eta float64) (alpha, adj float64) {
	alpha = s.Measure.Alpha()
	if s.Measure == logsv.Inverse {
		adj = s.Params.Beta
		if s.BackboneInDrift {
			adj *= eta
		}
	}
	return alpha, adj
}

// incSource yields the unit normal increment rows of one time step.
type incSource func(step int) (z0, z1 []float64)

func freshSource(rng *rand.Rand, paths int) incSource {
	d := util.NewNormal(rng)
	z0 := make([]float64, paths)
	z1 := make([]float64, paths)
	return func(int) ([]float64, []float64) {
		for j := range z0 {
			z0[j] = d.Rand()
			z1[j] = d.Rand()
		}
		return z0, z1
	}
}

func frozenSource(inc util.Increments) incSource {
	return func(step int) ([]float64, []float64) {
		return inc.Z0[step], inc.Z1[step]
	}
}

// advance runs the state over one maturity gap. The log-vol update carries
// both mean-reversion terms and the Ito correction; the quadratic variation
// accumulates by trapezoid in sigma^2.
func (s Simulator) advance(st State, grid TimeGrid, eta float64, src incSource) {
	p := s.Params
	alpha, adj := s.coeffs(eta)
	vt2 := p.Vartheta2()
	eta2 := eta * eta
	dt, sdt := grid.Dt, math.Sqrt(grid.Dt)

	for i := 0; i < grid.Steps; i++ {
		z0, z1 := src(i)
		for j := range st.X {
			sig := st.Sigma[j]
			s2dt := eta2 * sig * sig * dt
			st.X[j] += alpha*0.5*s2dt + eta*sig*sdt*z0[j]
			logv := math.Log(sig) +
				((p.Kappa1*p.Theta/sig-p.Kappa1)+p.Kappa2*(p.Theta-sig)+adj*sig-0.5*vt2)*dt +
				p.Beta*sdt*z0[j] + p.Volvol*sdt*z1[j]
			next := math.Exp(logv)
			st.Sigma[j] = next
			st.I[j] += 0.5 * (s2dt + eta2*next*next*dt)
		}
	}
}

// Slice advances the state over one maturity gap with frozen increments.
func (s Simulator) Slice(st State, gap, eta float64, inc util.Increments) error {
	if err := s.validate(); err != nil {
		return err
	}
	grid, err := NewTimeGrid(gap, s.StepsPerYear)
	if err != nil {
		return err
	}
	if len(inc.Z0) != grid.Steps || len(inc.Z1) != grid.Steps {
		return fmt.Errorf("mc: increments carry %d steps, grid needs %d", len(inc.Z0), grid.Steps)
	}
	if st.Paths() == 0 || len(inc.Z0[0]) != st.Paths() {
		return errors.New("mc: increment and state path counts differ")
	}
	s.advance(st, grid, eta, frozenSource(inc))
	return nil
}

// Terminal simulates fresh terminal values at a single maturity.
func (s Simulator) Terminal(rng *rand.Rand, ttm float64) (State, error) {
	if err := s.validate(); err != nil {
		return State{}, err
	}
	grid, err := NewTimeGrid(ttm, s.StepsPerYear)
	if err != nil {
		return State{}, err
	}
	st := NewState(s.Params, s.Paths)
	s.advance(st, grid, s.Params.BackboneEta(ttm), freshSource(rng, s.Paths))
	return st, nil
}

// Chain simulates terminal states at every maturity of an increasing chain,
// continuing the paths across the gaps. Returns one snapshot per maturity.
func (s Simulator) Chain(rng *rand.Rand, ttms []float64) ([]State, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := checkTTMs(ttms); err != nil {
		return nil, err
	}
	st := NewState(s.Params, s.Paths)
	out := make([]State, len(ttms))
	t0 := 0.0
	for i, ttm := range ttms {
		grid, err := NewTimeGrid(ttm-t0, s.StepsPerYear)
		if err != nil {
			return nil, err
		}
		s.advance(st, grid, s.Params.BackboneEta(ttm), freshSource(rng, s.Paths))
		out[i] = st.Clone()
		t0 = ttm
	}
	return out, nil
}

// ChainFrozen replays a chain on pre-drawn increments, one set per gap, so
// repeated calls with different parameters share the randomness.
func (s Simulator) ChainFrozen(frozen []util.Increments, ttms []float64) ([]State, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := checkTTMs(ttms); err != nil {
		return nil, err
	}
	if len(frozen) != len(ttms) {
		return nil, fmt.Errorf("mc: %d increment sets for %d maturities", len(frozen), len(ttms))
	}
	st := NewState(s.Params, s.Paths)
	out := make([]State, len(ttms))
	t0 := 0.0
	for i, ttm := range ttms {
		if err := s.Slice(st, ttm-t0, s.Params.BackboneEta(ttm), frozen[i]); err != nil {
			return nil, err
		}
		out[i] = st.Clone()
		t0 = ttm
	}
	return out, nil
}

// ChainSteps sizes the increment sets of a frozen chain valuation.
func (s Simulator) ChainSteps(ttms []float64) ([]int, error) {
	if err := checkTTMs(ttms); err != nil {
		return nil, err
	}
	out := make([]int, len(ttms))
	t0 := 0.0
	for i, ttm := range ttms {
		grid, err := NewTimeGrid(ttm-t0, s.StepsPerYear)
		if err != nil {
			return nil, err
		}
		out[i] = grid.Steps
		t0 = ttm
	}
	return out, nil
}

// VolPaths simulates the vol factor alone on the full grid, driving it with
// the combined noise amplitude since the marginal law needs no split between
// the two factors. Returns the time grid and a (steps+1) x paths matrix.
func (s Simulator) VolPaths(rng *rand.Rand, ttm float64) ([]float64, [][]float64, error) {
	if err := s.validate(); err != nil {
		return nil, nil, err
	}
	grid, err := NewTimeGrid(ttm, s.StepsPerYear)
	if err != nil {
		return nil, nil, err
	}
	p := s.Params
	adj := 0.0
	if s.Measure == logsv.Inverse {
		adj = p.Beta
	}
	vt2 := p.Vartheta2()
	vt := math.Sqrt(vt2)
	dt, sdt := grid.Dt, math.Sqrt(grid.Dt)

	d := util.NewNormal(rng)
	sigma := make([][]float64, grid.Steps+1)
	sigma[0] = make([]float64, s.Paths)
	for j := range sigma[0] {
		sigma[0][j] = p.Sigma0
	}
	for i := 1; i <= grid.Steps; i++ {
		row := make([]float64, s.Paths)
		for j := range row {
			sig := sigma[i-1][j]
			logv := math.Log(sig) +
				((p.Kappa1*p.Theta/sig-p.Kappa1)+p.Kappa2*(p.Theta-sig)+adj*sig-0.5*vt2)*dt +
				vt*sdt*d.Rand()
			row[j] = math.Exp(logv)
		}
		sigma[i] = row
	}
	return grid.Times(), sigma, nil
}

func checkTTMs(ttms []float64) error {
	if len(ttms) == 0 {
		return errors.New("mc: no maturities")
	}
	t0 := 0.0
	for _, ttm := range ttms {
		if ttm <= t0 {
			return errors.New("mc: maturities must be positive and strictly increasing")
		}
		t0 = ttm
	}
	return nil
}
