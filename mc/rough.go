package mc

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/util"
)

var (
	ErrRoughMeasure  = errors.New("mc: rough scheme runs under the spot measure only")
	ErrRoughHurst    = errors.New("mc: rough scheme needs hurst exponent in (0, 0.5)")
	ErrRoughBackbone = errors.New("mc: rough scheme supports a unit backbone only")
)

// kernelLag is how many steps the lift stays away from the kernel singularity
// at zero. The recursion is written for a lag of one; other lags are not
// implemented.
const kernelLag = 1

// KernelApprox is a sum-of-exponentials fit of the fractional kernel
// t^(H - 1/2): K(t) ~ Sum_j C_j exp(-Gamma_j t). Err is the measured worst
// relative error on [dt, horizon].
type KernelApprox struct {
	C     []float64
	Gamma []float64
	Err   float64
}

// Eval evaluates the fitted kernel at t.
func (k KernelApprox) Eval(t float64) float64 {
	out := 0.0
	for j, c := range k.C {
		out += c * math.Exp(-k.Gamma[j]*t)
	}
	return out
}

// ApproxKernel fits the power kernel t^a, a in (-0.5, 0), on [dt, horizon].
// Nodes come from the Laplace representation of the power law: the rate axis
// is split into a zero bucket plus geometric buckets up to 2/dt, each bucket
// contributing its probability mass at its first-moment-matched rate. The
// node count doubles until the sampled relative error drops below tol.
func ApproxKernel(a, tol, dt, horizon float64) (KernelApprox, error) {
	if !(a > -0.5 && a < 0.0) {
		return KernelApprox{}, fmt.Errorf("mc: kernel exponent must lie in (-0.5, 0), got %v", a)
	}
	if !(dt > 0.0) || !(horizon >= dt) {
		return KernelApprox{}, fmt.Errorf("mc: need 0 < dt <= horizon, got dt=%v horizon=%v", dt, horizon)
	}
	// Rates below 0.1/horizon barely decay over the window and rates above
	// 8/dt are dead by the first grid point, so the ladder spans that band.
	gMin := 0.1 / horizon
	gMax := 8.0 / dt

	for n := 8; n <= 512; n *= 2 {
		k := buildKernel(a, gMin, gMax, n)
		k.Err = kernelError(k, a, dt, horizon)
		if k.Err <= tol {
			return k, nil
		}
	}
	return KernelApprox{}, fmt.Errorf("mc: kernel tolerance %v not reachable on [%v, %v]", tol, dt, horizon)
}

func buildKernel(a, gMin, gMax float64, n int) KernelApprox {
	edges := make([]float64, n+1)
	ratio := math.Pow(gMax/gMin, 1.0/float64(n-1))
	edges[1] = gMin
	for i := 2; i <= n; i++ {
		edges[i] = edges[i-1] * ratio
	}

	k := KernelApprox{C: make([]float64, n), Gamma: make([]float64, n)}
	norm := 1.0 / math.Gamma(-a)
	for j := 0; j < n; j++ {
		lo, hi := edges[j], edges[j+1]
		m0 := (math.Pow(hi, -a) - math.Pow(lo, -a)) / (-a)
		m1 := (math.Pow(hi, 1.0-a) - math.Pow(lo, 1.0-a)) / (1.0 - a)
		k.C[j] = norm * m0
		k.Gamma[j] = m1 / m0
	}
	return k
}

func kernelError(k KernelApprox, a, dt, horizon float64) float64 {
	const samples = 128
	worst := 0.0
	step := math.Log(horizon/dt) / float64(samples-1)
	for i := 0; i < samples; i++ {
		t := dt * math.Exp(float64(i)*step)
		exact := math.Pow(t, a)
		if rel := math.Abs(k.Eval(t)-exact) / exact; rel > worst {
			worst = rel
		}
	}
	return worst
}

// RoughSimulator runs the rough-kernel scheme: the vol factor is a Volterra
// process with kernel t^(H-1/2), simulated through the exponential lift plus
// an exactly-sampled local kernel increment. Discretisation can push the vol
// slightly negative, so each step projects it back to zero. Spot measure and
// unit backbone only.
type RoughSimulator struct {
	Params       logsv.Params
	Measure      logsv.Measure
	StepsPerYear int
	Paths        int
	KernelTol    float64
}

// NewRoughSimulator uses the spot measure and the source defaults.
func NewRoughSimulator(p logsv.Params) RoughSimulator {
	return RoughSimulator{
		Params:       p,
		Measure:      logsv.Spot,
		StepsPerYear: DefaultStepsPerYear,
		Paths:        DefaultPaths,
		KernelTol:    DefaultKernelTol,
	}
}

func (s RoughSimulator) validate() error {
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("mc: %w", err)
	}
	if s.Measure != logsv.Spot {
		return ErrRoughMeasure
	}
	if !s.Params.IsRough() {
		return ErrRoughHurst
	}
	for _, eta := range s.Params.Backbone.Etas {
		if eta != 1.0 {
			return ErrRoughBackbone
		}
	}
	if s.StepsPerYear <= 0 || s.Paths <= 0 {
		return fmt.Errorf("mc: steps per year and paths must be positive, got %d and %d", s.StepsPerYear, s.Paths)
	}
	return nil
}

// stepCov is the covariance of one step's plain Brownian increment and its
// kernel-weighted local increment Int (dt-s)^a dW.
func stepCov(a, dt float64) *mat.SymDense {
	c01 := math.Pow(dt, a+1.0) / (a + 1.0)
	return mat.NewSymDense(2, []float64{
		dt, c01,
		c01, math.Pow(dt, 2.0*a+1.0) / (2.0*a + 1.0),
	})
}

// roughNoise yields one step's increment rows: the log-return driver scaled
// by sqrt(dt) and the correlated (lift, local) kernel pair.
type roughNoise func(step int) (w0, lift, local []float64)

func (s RoughSimulator) freshNoise(rng *rand.Rand, dt float64) (roughNoise, error) {
	pair, ok := distmv.NewNormal([]float64{0.0, 0.0}, stepCov(s.Params.H-0.5, dt), rng)
	if !ok {
		return nil, errors.New("mc: step covariance is not positive definite")
	}
	d := util.NewNormal(rng)
	sdt := math.Sqrt(dt)
	w0 := make([]float64, s.Paths)
	lift := make([]float64, s.Paths)
	local := make([]float64, s.Paths)
	v := make([]float64, 2)
	return func(int) ([]float64, []float64, []float64) {
		for j := 0; j < s.Paths; j++ {
			w0[j] = sdt * d.Rand()
			v = pair.Rand(v)
			lift[j], local[j] = v[0], v[1]
		}
		return w0, lift, local
	}, nil
}

// RoughIncrements is a pool of unit normals for frozen rough valuations:
// W0 drives the log-return, ZLift and ZLocal the kernel pair.
type RoughIncrements struct {
	W0, ZLift, ZLocal [][]float64
}

// DrawRoughIncrements samples a pool covering the given number of steps.
func DrawRoughIncrements(rng *rand.Rand, steps, paths int) RoughIncrements {
	return RoughIncrements{
		W0:     util.NormalMatrix(rng, steps, paths),
		ZLift:  util.NormalMatrix(rng, steps, paths),
		ZLocal: util.NormalMatrix(rng, steps, paths),
	}
}

func (inc RoughIncrements) steps() int {
	return len(inc.W0)
}

func (s RoughSimulator) frozenNoise(inc RoughIncrements, dt float64) (roughNoise, error) {
	var chol mat.Cholesky
	if !chol.Factorize(stepCov(s.Params.H-0.5, dt)) {
		return nil, errors.New("mc: step covariance is not positive definite")
	}
	var lt mat.TriDense
	chol.LTo(&lt)
	l00, l10, l11 := lt.At(0, 0), lt.At(1, 0), lt.At(1, 1)

	sdt := math.Sqrt(dt)
	w0 := make([]float64, s.Paths)
	lift := make([]float64, s.Paths)
	local := make([]float64, s.Paths)
	return func(step int) ([]float64, []float64, []float64) {
		zw, zf, zc := inc.W0[step], inc.ZLift[step], inc.ZLocal[step]
		for j := 0; j < s.Paths; j++ {
			w0[j] = sdt * zw[j]
			lift[j] = l00 * zf[j]
			local[j] = l10*zf[j] + l11*zc[j]
		}
		return w0, lift, local
	}, nil
}

// run integrates one maturity from scratch. The lift state U_j accumulates
// the lagged history of each exponential node; the current step enters
// through the exactly-sampled local increment and the frozen-coefficient
// drift factor Int_0^dt s^a ds.
func (s RoughSimulator) run(grid TimeGrid, kernel KernelApprox, noise roughNoise) State {
	p := s.Params
	a := p.H - 0.5
	totalVol := math.Sqrt(p.Vartheta2())
	dt := grid.Dt
	driftFactor := math.Pow(dt, a+1.0) / (a + 1.0)

	m := len(kernel.C)
	coeff1 := make([]float64, m)
	coeff2 := make([]float64, m)
	for j := 0; j < m; j++ {
		coeff1[j] = kernel.C[j] * math.Exp(-kernel.Gamma[j]*float64(kernelLag)*dt)
		coeff2[j] = 1.0 / (1.0 + kernel.Gamma[j]*dt)
	}

	st := NewState(p, s.Paths)
	driftPrev := make([]float64, s.Paths)
	volPrev := make([]float64, s.Paths)
	liftPrev := make([]float64, s.Paths)
	u := make([][]float64, m)
	for j := range u {
		u[j] = make([]float64, s.Paths)
	}

	for i := 0; i < grid.Steps; i++ {
		w0, lift, local := noise(i)
		for j := 0; j < s.Paths; j++ {
			sig := st.Sigma[j]
			s2dt := sig * sig * dt
			st.X[j] += -0.5*s2dt + sig*w0[j]

			var next float64
			if i == 0 {
				driftPrev[j] = (p.Kappa1 + p.Kappa2*sig) * (p.Theta - sig)
				volPrev[j] = totalVol * sig
				next = p.Sigma0 + driftPrev[j]*driftFactor + volPrev[j]*local[j]
			} else {
				driftTerm := (p.Kappa1 + p.Kappa2*sig) * (p.Theta - sig)
				volTerm := totalVol * sig
				hist := 0.0
				for n := 0; n < m; n++ {
					un := coeff2[n] * (u[n][j] + driftPrev[j]*dt + volPrev[j]*liftPrev[j])
					u[n][j] = un
					hist += coeff1[n] * un
				}
				next = p.Sigma0 + hist + driftTerm*driftFactor + volTerm*local[j]
				driftPrev[j] = driftTerm
				volPrev[j] = volTerm
			}
			if next < 0.0 {
				next = 0.0
			}
			st.Sigma[j] = next
			st.I[j] += 0.5 * (s2dt + next*next*dt)
		}
		copy(liftPrev, lift)
	}
	return st
}

// Terminal simulates fresh terminal values at a single maturity.
func (s RoughSimulator) Terminal(rng *rand.Rand, ttm float64) (State, error) {
	if err := s.validate(); err != nil {
		return State{}, err
	}
	grid, err := NewTimeGrid(ttm, s.StepsPerYear)
	if err != nil {
		return State{}, err
	}
	kernel, err := ApproxKernel(s.Params.H-0.5, s.KernelTol, grid.Dt, ttm)
	if err != nil {
		return State{}, err
	}
	noise, err := s.freshNoise(rng, grid.Dt)
	if err != nil {
		return State{}, err
	}
	return s.run(grid, kernel, noise), nil
}

// TerminalFrozen simulates a single maturity on the pool's leading steps.
func (s RoughSimulator) TerminalFrozen(inc RoughIncrements, ttm float64) (State, error) {
	if err := s.validate(); err != nil {
		return State{}, err
	}
	grid, err := NewTimeGrid(ttm, s.StepsPerYear)
	if err != nil {
		return State{}, err
	}
	if inc.steps() < grid.Steps {
		return State{}, fmt.Errorf("mc: pool carries %d steps, maturity needs %d", inc.steps(), grid.Steps)
	}
	kernel, err := ApproxKernel(s.Params.H-0.5, s.KernelTol, grid.Dt, ttm)
	if err != nil {
		return State{}, err
	}
	noise, err := s.frozenNoise(inc, grid.Dt)
	if err != nil {
		return State{}, err
	}
	return s.run(grid, kernel, noise), nil
}

// ChainFrozen values every maturity of a chain on one shared pool. The kernel
// history cannot be cut at a maturity and resumed, so each maturity re-runs
// from zero over a prefix of the pool; paths of consecutive maturities stay
// coupled through the shared leading increments.
func (s RoughSimulator) ChainFrozen(inc RoughIncrements, ttms []float64) ([]State, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := checkTTMs(ttms); err != nil {
		return nil, err
	}
	out := make([]State, len(ttms))
	for i, ttm := range ttms {
		st, err := s.TerminalFrozen(inc, ttm)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

// PoolSteps sizes a pool covering the last maturity of a chain.
func (s RoughSimulator) PoolSteps(ttms []float64) (int, error) {
	if err := checkTTMs(ttms); err != nil {
		return 0, err
	}
	grid, err := NewTimeGrid(ttms[len(ttms)-1], s.StepsPerYear)
	if err != nil {
		return 0, err
	}
	return grid.Steps, nil
}

// VolPaths simulates the rough vol factor alone on the full grid. Returns
// the time grid and a (steps+1) x paths matrix.
func (s RoughSimulator) VolPaths(rng *rand.Rand, ttm float64) ([]float64, [][]float64, error) {
	if err := s.validate(); err != nil {
		return nil, nil, err
	}
	grid, err := NewTimeGrid(ttm, s.StepsPerYear)
	if err != nil {
		return nil, nil, err
	}
	kernel, err := ApproxKernel(s.Params.H-0.5, s.KernelTol, grid.Dt, ttm)
	if err != nil {
		return nil, nil, err
	}
	noise, err := s.freshNoise(rng, grid.Dt)
	if err != nil {
		return nil, nil, err
	}

	p := s.Params
	a := p.H - 0.5
	totalVol := math.Sqrt(p.Vartheta2())
	dt := grid.Dt
	driftFactor := math.Pow(dt, a+1.0) / (a + 1.0)

	m := len(kernel.C)
	coeff1 := make([]float64, m)
	coeff2 := make([]float64, m)
	for j := 0; j < m; j++ {
		coeff1[j] = kernel.C[j] * math.Exp(-kernel.Gamma[j]*float64(kernelLag)*dt)
		coeff2[j] = 1.0 / (1.0 + kernel.Gamma[j]*dt)
	}

	driftPrev := make([]float64, s.Paths)
	volPrev := make([]float64, s.Paths)
	liftPrev := make([]float64, s.Paths)
	u := make([][]float64, m)
	for j := range u {
		u[j] = make([]float64, s.Paths)
	}

	sigma := make([][]float64, grid.Steps+1)
	sigma[0] = make([]float64, s.Paths)
	for j := range sigma[0] {
		sigma[0][j] = p.Sigma0
	}
	for i := 0; i < grid.Steps; i++ {
		_, lift, local := noise(i)
		row := make([]float64, s.Paths)
		for j := 0; j < s.Paths; j++ {
			sig := sigma[i][j]
			var next float64
			if i == 0 {
				driftPrev[j] = (p.Kappa1 + p.Kappa2*sig) * (p.Theta - sig)
				volPrev[j] = totalVol * sig
				next = p.Sigma0 + driftPrev[j]*driftFactor + volPrev[j]*local[j]
			} else {
				driftTerm := (p.Kappa1 + p.Kappa2*sig) * (p.Theta - sig)
				volTerm := totalVol * sig
				hist := 0.0
				for n := 0; n < m; n++ {
					un := coeff2[n] * (u[n][j] + driftPrev[j]*dt + volPrev[j]*liftPrev[j])
					u[n][j] = un
					hist += coeff1[n] * un
				}
				next = p.Sigma0 + hist + driftTerm*driftFactor + volTerm*local[j]
				driftPrev[j] = driftTerm
				volPrev[j] = volTerm
			}
			if next < 0.0 {
				next = 0.0
			}
			row[j] = next
		}
		sigma[i+1] = row
		copy(liftPrev, lift)
	}
	return grid.Times(), sigma, nil
}
