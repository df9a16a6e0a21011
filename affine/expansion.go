// Package affine integrates the complex Riccati-type coefficient systems of
// the affine log-MGF expansion for the log-normal stochastic volatility
// model. The log-MGF of (X, I, y) = (log-return, quadratic variation,
// sigma - theta) is approximated by an exponential polynomial in y,
//
//	log E[exp(-phi X - psi I - u y)] ~ Sum_k A_k(tau) y0^k,  y0 = sigma0 - theta
//
// with the A_k driven by ODEs in maturity. The engine integrates one
// maturity gap at a time and carries the coefficient state across a chain.
package affine

import (
	"errors"
	"fmt"

	"github.com/banachtech/stochvol/logsv"
)

// Order is the truncation order of the expansion polynomial.
type Order int

const (
	First  Order = iota + 1 // three coefficients A0..A2
	Second                  // five coefficients A0..A4
)

// Terms is the coefficient count of the order.
func (o Order) Terms() int {
	switch o {
	case First:
		return 3
	case Second:
		return 5
	}
	return 0
}

func (o Order) String() string {
	switch o {
	case First:
		return "first"
	case Second:
		return "second"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// Solver selects the integration strategy. All strategies satisfy the same
// accuracy contract on supported configurations.
type Solver int

const (
	// NonStiff runs an adaptive Dormand-Prince RK5(4) scheme.
	NonStiff Solver = iota
	// Stiff runs an adaptive implicit trapezoid with analytic Jacobians.
	Stiff
	// Analytic runs the closed-form exponential-midpoint stepping, available
	// for the first expansion order only.
	Analytic
)

var (
	ErrUnsupportedOrder  = errors.New("affine: unsupported expansion order")
	ErrAnalyticSecond    = errors.New("affine: analytic solver supports first order only")
	ErrUnsupportedSolver = errors.New("affine: unknown solver")
)

// Config fixes the engine behaviour for a pricing call. The measure and the
// backbone-in-drift flag must match the Monte-Carlo side exactly, otherwise
// cross-validation compares different models.
type Config struct {
	Order   Order
	Measure logsv.Measure
	Solver  Solver
	// BackboneInDrift multiplies the inverse-measure drift adjustment
	// beta*sigma^2 by the backbone eta. The reference derivation is marked
	// uncertain on this term, so both readings stay available.
	BackboneInDrift bool
	RTol, ATol      float64
}

// DefaultConfig is first order, spot measure, non-stiff stepping.
func DefaultConfig() Config {
	return Config{
		Order:           First,
		Measure:         logsv.Spot,
		Solver:          NonStiff,
		BackboneInDrift: true,
		RTol:            1e-6,
		ATol:            1e-10,
	}
}

// Validate reports configuration combinations the engine cannot run.
func (c Config) Validate() error {
	if c.Order != First && c.Order != Second {
		return ErrUnsupportedOrder
	}
	switch c.Solver {
	case NonStiff, Stiff:
	case Analytic:
		if c.Order != First {
			return ErrAnalyticSecond
		}
	default:
		return ErrUnsupportedSolver
	}
	return nil
}

// Batch is one aligned set of transform points. Phi drives the log-return
// transform, Psi the quadratic-variation transform and U the shifted-vol
// transform; unused components are zero.
type Batch struct {
	Phi []complex128
	Psi []complex128
	U   []complex128
}

// LogReturnBatch transforms the log-return only.
func LogReturnBatch(phi []complex128) Batch {
	return Batch{Phi: phi, Psi: make([]complex128, len(phi)), U: make([]complex128, len(phi))}
}

// QVarBatch transforms the quadratic variation only.
func QVarBatch(psi []complex128) Batch {
	return Batch{Phi: make([]complex128, len(psi)), Psi: psi, U: make([]complex128, len(psi))}
}

// SigmaBatch transforms the shifted volatility only.
func SigmaBatch(u []complex128) Batch {
	return Batch{Phi: make([]complex128, len(u)), Psi: make([]complex128, len(u)), U: u}
}

func (b Batch) validate() error {
	if len(b.Phi) == 0 || len(b.Phi) != len(b.Psi) || len(b.Phi) != len(b.U) {
		return errors.New("affine: batch arrays must be non-empty and aligned")
	}
	return nil
}

// State holds the expansion coefficients per transform point. The terminal
// state of one maturity slice is the initial state of the next.
type State [][]complex128

// NewState builds the initial state for the batch: all coefficients zero
// except the shifted-vol transform loading A1(0) = -u.
func NewState(b Batch, o Order) State {
	n := o.Terms()
	st := make(State, len(b.Phi))
	for i := range st {
		a := make([]complex128, n)
		a[1] = -b.U[i]
		st[i] = a
	}
	return st
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for i, a := range s {
		out[i] = append([]complex128(nil), a...)
	}
	return out
}

// LogMGF reads the slice log-MGF from the state at y0 = sigma0 - theta.
// The read-out is fresh per slice; only the coefficients continue.
func (s State) LogMGF(p logsv.Params) []complex128 {
	y0 := complex(p.Sigma0-p.Theta, 0.0)
	out := make([]complex128, len(s))
	for i, a := range s {
		acc := complex(0, 0)
		for k := len(a) - 1; k >= 0; k-- {
			acc = acc*y0 + a[k]
		}
		out[i] = acc
	}
	return out
}

// SolveSlice advances the coefficient state over one maturity gap dt with the
// given backbone eta. The input state is not mutated.
func SolveSlice(p logsv.Params, cfg Config, b Batch, st State, dt, eta float64) (State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if len(st) != len(b.Phi) {
		return nil, errors.New("affine: state and batch sizes differ")
	}
	if !(dt > 0.0) {
		return nil, fmt.Errorf("affine: maturity gap must be positive, got %v", dt)
	}

	out := st.Clone()
	for i := range out {
		pc := newPointCoef(p, cfg, b.Phi[i], b.Psi[i], eta)
		var err error
		switch cfg.Solver {
		case NonStiff:
			err = solveRK45(out[i], pc, dt, cfg.RTol, cfg.ATol)
		case Stiff:
			err = solveTrapezoid(out[i], pc, dt, cfg.RTol, cfg.ATol)
		case Analytic:
			err = solveAnalyticFirst(out[i], pc, dt)
		}
		if err != nil {
			return nil, fmt.Errorf("affine: point %d: %w", i, err)
		}
	}
	return out, nil
}

// SolveChain folds SolveSlice over increasing maturities and returns the
// per-slice log-MGF arrays. The coefficient state threads through the fold;
// each slice integrates only its gap.
func SolveChain(p logsv.Params, cfg Config, b Batch, ttms []float64) ([][]complex128, error) {
	if len(ttms) == 0 {
		return nil, errors.New("affine: no maturities")
	}
	st := NewState(b, cfg.Order)
	out := make([][]complex128, len(ttms))
	t0 := 0.0
	for i, ttm := range ttms {
		if ttm <= t0 {
			return nil, errors.New("affine: maturities must be strictly increasing")
		}
		var err error
		st, err = SolveSlice(p, cfg, b, st, ttm-t0, p.BackboneEta(ttm))
		if err != nil {
			return nil, err
		}
		out[i] = st.LogMGF(p)
		t0 = ttm
	}
	return out, nil
}
