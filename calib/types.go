// Package calib fits the stochastic volatility parameters to an option chain
// by nonlinear least squares on vega-weighted implied-vol residuals. The
// optimizer runs unconstrained in a transformed coordinate space: box bounds
// come from the reparametrization, inequality constraints from hinge
// penalties added to the objective.
package calib

import (
	"fmt"

	"github.com/banachtech/stochvol/logsv"
)

// CalibrationType selects which parameter subset floats.
type CalibrationType int

const (
	// Params4 floats sigma0, theta, beta and volvol; kappa1 and kappa2 stay
	// at the initial guess.
	Params4 CalibrationType = iota
	// Params5 floats sigma0, theta, kappa1, beta and volvol; kappa2 is
	// linked as kappa1/theta.
	Params5
	// ParamsWithVarswapFit floats beta and volvol only and refits the vol
	// backbone to the chain's variance-swap strikes on every trial.
	ParamsWithVarswapFit
)

func (t CalibrationType) String() string {
	switch t {
	case Params4:
		return "params4"
	case Params5:
		return "params5"
	case ParamsWithVarswapFit:
		return "params_with_varswap_fit"
	}
	return fmt.Sprintf("CalibrationType(%d)", int(t))
}

func (t CalibrationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *CalibrationType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "params4":
		*t = Params4
	case "params5":
		*t = Params5
	case "params_with_varswap_fit":
		*t = ParamsWithVarswapFit
	default:
		return fmt.Errorf("unknown calibration type %q", string(b))
	}
	return nil
}

// ConstraintType selects the inequality constraints on the fitted
// parameters. Feasibility means every slack is non-negative.
type ConstraintType int

const (
	Unconstrained ConstraintType = iota
	// MmaMartingale keeps kappa2 - beta >= 0, preserving the spot martingale
	// property under the money-market-account measure.
	MmaMartingale
	// InverseMartingale keeps kappa2 - 2 beta >= 0, the inverse-measure
	// analogue.
	InverseMartingale
	// MmaMartingaleMoment4 adds kappa - 1.5 vartheta^2 >= 0, a finite fourth
	// moment of the vol.
	MmaMartingaleMoment4
	InverseMartingaleMoment4
)

func (t ConstraintType) String() string {
	switch t {
	case Unconstrained:
		return "unconstrained"
	case MmaMartingale:
		return "mma_martingale"
	case InverseMartingale:
		return "inverse_martingale"
	case MmaMartingaleMoment4:
		return "mma_martingale_moment4"
	case InverseMartingaleMoment4:
		return "inverse_martingale_moment4"
	}
	return fmt.Sprintf("ConstraintType(%d)", int(t))
}

func (t ConstraintType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ConstraintType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unconstrained":
		*t = Unconstrained
	case "mma_martingale":
		*t = MmaMartingale
	case "inverse_martingale":
		*t = InverseMartingale
	case "mma_martingale_moment4":
		*t = MmaMartingaleMoment4
	case "inverse_martingale_moment4":
		*t = InverseMartingaleMoment4
	default:
		return fmt.Errorf("unknown constraint type %q", string(b))
	}
	return nil
}

// Slacks evaluates the constraint functions at p.
func (t ConstraintType) Slacks(p logsv.Params) []float64 {
	moment4 := p.Kappa() - 1.5*p.Vartheta2()
	switch t {
	case MmaMartingale:
		return []float64{p.Kappa2 - p.Beta}
	case InverseMartingale:
		return []float64{p.Kappa2 - 2.0*p.Beta}
	case MmaMartingaleMoment4:
		return []float64{p.Kappa2 - p.Beta, moment4}
	case InverseMartingaleMoment4:
		return []float64{p.Kappa2 - 2.0*p.Beta, moment4}
	}
	return nil
}

// Satisfied reports whether p meets every constraint up to a small slack
// tolerance, since the hinge penalties let the optimum sit epsilon outside.
func (t ConstraintType) Satisfied(p logsv.Params) bool {
	for _, s := range t.Slacks(p) {
		if s < -1e-6 {
			return false
		}
	}
	return true
}

// Engine selects how trial parameters are priced.
type Engine int

const (
	// Analytic prices through the affine transform inversion.
	Analytic Engine = iota
	// MC prices through the standard simulator on frozen increments, so
	// every trial sees identical randomness.
	MC
)

func (e Engine) String() string {
	switch e {
	case Analytic:
		return "analytic"
	case MC:
		return "mc"
	}
	return fmt.Sprintf("Engine(%d)", int(e))
}

func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Engine) UnmarshalText(b []byte) error {
	switch string(b) {
	case "analytic":
		*e = Analytic
	case "mc":
		*e = MC
	default:
		return fmt.Errorf("unknown engine %q", string(b))
	}
	return nil
}

// Bounds box every calibrated parameter.
type Bounds struct {
	Min logsv.Params `json:"min"`
	Max logsv.Params `json:"max"`
}

// DefaultBounds covers liquid crypto and equity surfaces.
func DefaultBounds() Bounds {
	return Bounds{
		Min: logsv.Params{Sigma0: 0.1, Theta: 0.1, Kappa1: 0.25, Kappa2: 0.25, Beta: -3.0, Volvol: 0.2},
		Max: logsv.Params{Sigma0: 1.5, Theta: 1.5, Kappa1: 10.0, Kappa2: 10.0, Beta: 3.0, Volvol: 3.0},
	}
}

func (b Bounds) validate() error {
	type axis struct {
		name   string
		lo, hi float64
	}
	for _, a := range []axis{
		{"sigma0", b.Min.Sigma0, b.Max.Sigma0},
		{"theta", b.Min.Theta, b.Max.Theta},
		{"kappa1", b.Min.Kappa1, b.Max.Kappa1},
		{"kappa2", b.Min.Kappa2, b.Max.Kappa2},
		{"beta", b.Min.Beta, b.Max.Beta},
		{"volvol", b.Min.Volvol, b.Max.Volvol},
	} {
		if !(a.lo < a.hi) {
			return fmt.Errorf("calib: %s bounds must satisfy min < max, got [%v, %v]", a.name, a.lo, a.hi)
		}
	}
	return nil
}
