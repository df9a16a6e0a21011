package mgf

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/integrate"

	"github.com/banachtech/stochvol/affine"
	"github.com/banachtech/stochvol/bsm"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
)

// ErrSigmaVanilla rejects option pricing on the raw volatility variable; the
// transform supports it only for densities.
var ErrSigmaVanilla = errors.New("mgf: vanilla pricing is defined for log-return and qvar variables only")

// Pricer runs the affine engine over a chain and inverts the transform into
// prices and densities.
type Pricer struct {
	params logsv.Params
	cfg    affine.Config
	scale  float64
}

func NewPricer(p logsv.Params, cfg affine.Config) (*Pricer, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("mgf: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pricer{params: p, cfg: cfg}, nil
}

// WithVolScale pins the quadrature frequency unit instead of deriving it from
// the parameters. Calibrations pin it from the market chain so every trial
// parameter set integrates on the same grid.
func (pr *Pricer) WithVolScale(v float64) *Pricer {
	pr.scale = v
	return pr
}

// ChainVolScale derives the frequency unit from the chain's first slice:
// its at-the-money quote times the root of its maturity, maturity capped at
// two weeks like the parameter-based scale.
func ChainVolScale(ch chain.Chain) (float64, error) {
	if err := ch.Validate(); err != nil {
		return 0.0, fmt.Errorf("mgf: %w", err)
	}
	atm := ch[0].ATMVol()
	if math.IsNaN(atm) || !(atm > 0.0) {
		return 0.0, errors.New("mgf: chain carries no usable at-the-money vol")
	}
	ttm := ch[0].TTM
	if cap := 0.5 / 12.0; ttm > cap {
		ttm = cap
	}
	return atm * math.Sqrt(ttm), nil
}

func (pr *Pricer) grid(vt logsv.VariableType, ttms []float64) (Grid, error) {
	if pr.scale > 0.0 {
		return NewGridScaled(vt, pr.cfg.Measure, pr.scale)
	}
	return NewGrid(vt, pr.cfg.Measure, pr.params, ttms)
}

// VanillaChain prices every quote of the chain. The coefficient ODEs are
// solved once across the whole chain; each slice then reuses its log-MGF for
// all strikes.
func (pr *Pricer) VanillaChain(ch chain.Chain) ([][]float64, error) {
	if err := ch.Validate(); err != nil {
		return nil, fmt.Errorf("mgf: %w", err)
	}
	ttms := ch.TTMs()
	grid, err := pr.grid(logsv.LogReturn, ttms)
	if err != nil {
		return nil, err
	}
	lambdas, err := affine.SolveChain(pr.params, pr.cfg, grid.Batch(logsv.LogReturn), ttms)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(ch))
	for i, sl := range ch {
		out[i] = pr.vanillaSlice(grid, lambdas[i], sl)
	}
	return out, nil
}

// vanillaSlice inverts one slice. Under the spot measure the contour integral
// yields the put and the call follows by parity; under the inverse measure
// the numeraire-adjusted kernel yields the call directly.
func (pr *Pricer) vanillaSlice(g Grid, lambda []complex128, sl chain.Slice) []float64 {
	pts := g.Points()
	inverse := pr.cfg.Measure == logsv.Inverse

	kern := make([]complex128, len(pts))
	for j, phi := range pts {
		if inverse {
			kern[j] = cmplx.Exp(lambda[j]) / (phi * (phi - 1))
		} else {
			kern[j] = cmplx.Exp(lambda[j]) / (phi * (phi + 1))
		}
	}

	vals := make([]float64, len(pts))
	prices := make([]float64, len(sl.Strikes))
	for si, strike := range sl.Strikes {
		k := complex(math.Log(strike/sl.Forward), 0)
		for j, phi := range pts {
			e := phi * k
			if !inverse {
				e = (phi + 1) * k
			}
			vals[j] = real(kern[j] * cmplx.Exp(e))
		}
		base := sl.DF * sl.Forward / math.Pi * integrate.Trapezoidal(g.Nu, vals)

		parity := sl.DF * (sl.Forward - strike)
		var price float64
		switch {
		case inverse && sl.Types[si] == bsm.Call:
			price = base
		case inverse:
			price = base - parity
		case sl.Types[si] == bsm.Call:
			price = base + parity
		default:
			price = base
		}
		// quadrature noise can leave deep wings epsilon-negative
		prices[si] = math.Max(price, 0.0)
	}
	return prices
}

// QvarSlice prices options on the annualized quadratic variation I_T / T.
// Strikes are variance levels. The forward comes from the moment system under
// the spot measure and from the transform derivative under the inverse one,
// where the vol drift adjustment moves E[I].
func (pr *Pricer) QvarSlice(ttm, df float64, strikes []float64, types []bsm.OptionType) ([]float64, error) {
	if !(ttm > 0.0) {
		return nil, fmt.Errorf("mgf: ttm must be positive, got %v", ttm)
	}
	if len(strikes) == 0 || len(strikes) != len(types) {
		return nil, errors.New("mgf: strikes and types must be non-empty and aligned")
	}
	for _, k := range strikes {
		if !(k > 0.0) {
			return nil, fmt.Errorf("mgf: qvar strikes must be positive, got %v", k)
		}
	}

	grid, err := pr.grid(logsv.QVar, []float64{ttm})
	if err != nil {
		return nil, err
	}
	lambdas, err := affine.SolveChain(pr.params, pr.cfg, grid.Batch(logsv.QVar), []float64{ttm})
	if err != nil {
		return nil, err
	}
	lambda := lambdas[0]

	forward, err := pr.qvarForward(ttm)
	if err != nil {
		return nil, err
	}

	pts := grid.Points()
	vals := make([]float64, len(pts))
	out := make([]float64, len(strikes))
	for si, strike := range strikes {
		kt := complex(strike*ttm, 0)
		for j, psi := range pts {
			vals[j] = real(cmplx.Exp(psi*kt+lambda[j]) / (psi * psi))
		}
		put := df / (ttm * math.Pi) * integrate.Trapezoidal(grid.Nu, vals)
		put = math.Max(put, 0.0)
		if types[si] == bsm.Call {
			out[si] = math.Max(put+df*(forward-strike), 0.0)
		} else {
			out[si] = put
		}
	}
	return out, nil
}

// PriceSlice prices one slice's quotes on the given variable type. Sigma has
// no traded vanilla, so requesting it is an error.
func (pr *Pricer) PriceSlice(vt logsv.VariableType, sl chain.Slice) ([]float64, error) {
	switch vt {
	case logsv.LogReturn:
		prices, err := pr.VanillaChain(chain.Chain{sl})
		if err != nil {
			return nil, err
		}
		return prices[0], nil
	case logsv.QVar:
		return pr.QvarSlice(sl.TTM, sl.DF, sl.Strikes, sl.Types)
	case logsv.Sigma:
		return nil, ErrSigmaVanilla
	}
	return nil, fmt.Errorf("mgf: unknown variable type %v", vt)
}

// QvarForward is the fair variance strike under the pricer's measure.
func (pr *Pricer) QvarForward(ttm float64) (float64, error) {
	if !(ttm > 0.0) {
		return 0.0, fmt.Errorf("mgf: ttm must be positive, got %v", ttm)
	}
	return pr.qvarForward(ttm)
}

func (pr *Pricer) qvarForward(ttm float64) (float64, error) {
	if pr.cfg.Measure == logsv.Spot {
		return logsv.AnalyticQvar(pr.params, ttm)
	}
	// E[I] = -dLambda/dpsi at zero, by central difference on the real axis.
	const h = 1e-5
	b := affine.QVarBatch([]complex128{complex(h, 0), complex(-h, 0)})
	lambdas, err := affine.SolveChain(pr.params, pr.cfg, b, []float64{ttm})
	if err != nil {
		return 0.0, err
	}
	return -real(lambdas[0][0]-lambdas[0][1]) / (2 * h * ttm), nil
}

// DensityX evaluates the log-return density at the given points.
func (pr *Pricer) DensityX(ttm float64, xs []float64) ([]float64, error) {
	grid, lambda, err := pr.slice(logsv.LogReturn, ttm)
	if err != nil {
		return nil, err
	}
	return invertDensity(grid, lambda, xs, 1.0), nil
}

// DensityQvar evaluates the density of the annualized quadratic variation.
func (pr *Pricer) DensityQvar(ttm float64, qs []float64) ([]float64, error) {
	grid, lambda, err := pr.slice(logsv.QVar, ttm)
	if err != nil {
		return nil, err
	}
	scaled := make([]float64, len(qs))
	for i, q := range qs {
		scaled[i] = q * ttm
	}
	return invertDensity(grid, lambda, scaled, ttm), nil
}

// DensitySigma evaluates the terminal volatility density.
func (pr *Pricer) DensitySigma(ttm float64, sigmas []float64) ([]float64, error) {
	grid, lambda, err := pr.slice(logsv.Sigma, ttm)
	if err != nil {
		return nil, err
	}
	shifted := make([]float64, len(sigmas))
	for i, s := range sigmas {
		shifted[i] = s - pr.params.Theta
	}
	return invertDensity(grid, lambda, shifted, 1.0), nil
}

func (pr *Pricer) slice(vt logsv.VariableType, ttm float64) (Grid, []complex128, error) {
	grid, err := pr.grid(vt, []float64{ttm})
	if err != nil {
		return Grid{}, nil, err
	}
	lambdas, err := affine.SolveChain(pr.params, pr.cfg, grid.Batch(vt), []float64{ttm})
	if err != nil {
		return Grid{}, nil, err
	}
	return grid, lambdas[0], nil
}

// invertDensity computes scale/pi * Int Re[exp(u x + Lambda(u))] dnu per x.
func invertDensity(g Grid, lambda []complex128, xs []float64, scale float64) []float64 {
	pts := g.Points()
	vals := make([]float64, len(pts))
	out := make([]float64, len(xs))
	for i, x := range xs {
		cx := complex(x, 0)
		for j, u := range pts {
			vals[j] = real(cmplx.Exp(u*cx + lambda[j]))
		}
		out[i] = scale / math.Pi * integrate.Trapezoidal(g.Nu, vals)
	}
	return out
}
