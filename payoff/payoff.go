// Package payoff reduces terminal Monte-Carlo state to discounted option
// price estimates with standard errors. One call covers one maturity slice:
// vanilla payoffs on the simulated log-return, quadratic-variation payoffs on
// the accumulated variance, or volatility payoffs on the terminal vol factor.
package payoff

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banachtech/stochvol/bsm"
	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/mc"
)

// NaNWarnRate is the dropped-path share above which an estimate should be
// treated as a data-quality problem rather than ordinary noise.
const NaNWarnRate = 0.01

// Request describes one maturity slice to aggregate. Strikes and Types share
// indexing; for quadratic-variation slices the strikes are annualized
// variances, for volatility slices vol levels.
type Request struct {
	Variable logsv.VariableType
	Measure  logsv.Measure
	TTM      float64
	Forward  float64
	DF       float64
	Strikes  []float64
	Types    []bsm.OptionType
}

// Estimate is a discounted Monte-Carlo price with its standard error. Live
// counts the paths surviving the finite-value filter, NaNRate the dropped
// share. A dead slice (no surviving paths) carries NaN price and error.
type Estimate struct {
	Price   float64
	StdErr  float64
	Live    int
	NaNRate float64
}

// Degraded reports whether enough paths were dropped to question the
// estimate.
func (e Estimate) Degraded() bool {
	return e.NaNRate > NaNWarnRate
}

func (r Request) validate(st mc.State) error {
	if !(r.TTM > 0.0) {
		return fmt.Errorf("payoff: ttm must be positive, got %v", r.TTM)
	}
	if !(r.Forward > 0.0) || !(r.DF > 0.0) {
		return fmt.Errorf("payoff: forward and df must be positive, got %v, %v", r.Forward, r.DF)
	}
	if len(r.Strikes) == 0 || len(r.Types) != len(r.Strikes) {
		return errors.New("payoff: strikes and types must be non-empty and aligned")
	}
	for i, k := range r.Strikes {
		if !(k > 0.0) {
			return fmt.Errorf("payoff: strike %d must be positive, got %v", i, k)
		}
		if r.Types[i] != bsm.Call && r.Types[i] != bsm.Put {
			return fmt.Errorf("payoff: unknown option type %q", r.Types[i])
		}
	}
	n := st.Paths()
	if n == 0 || len(st.Sigma) != n || len(st.I) != n {
		return errors.New("payoff: state arrays must be non-empty and aligned")
	}
	return nil
}

// Aggregate prices every strike of the slice from the terminal state.
func Aggregate(r Request, st mc.State) ([]Estimate, error) {
	if err := r.validate(st); err != nil {
		return nil, err
	}
	switch r.Variable {
	case logsv.LogReturn:
		if r.Measure == logsv.Inverse {
			return r.inverseVanillas(st.X), nil
		}
		return r.spotVanillas(st.X), nil
	case logsv.QVar:
		annual := make([]float64, len(st.I))
		for j, q := range st.I {
			annual[j] = q / r.TTM
		}
		return r.intrinsicOn(annual, r.DF), nil
	case logsv.Sigma:
		return r.intrinsicOn(st.Sigma, r.DF), nil
	default:
		return nil, fmt.Errorf("payoff: unknown variable type %q", r.Variable)
	}
}

func (r Request) spotVanillas(x []float64) []Estimate {
	spot := make([]float64, len(x))
	for j, v := range x {
		spot[j] = r.Forward * math.Exp(v)
	}
	return r.intrinsicOn(spot, r.DF)
}

// inverseVanillas prices coin-settled options in units of the forward: the
// payoff is measured on exp(X) against the strike moneyness and weighted by
// the exp(-X) numeraire of the inverse measure.
func (r Request) inverseVanillas(x []float64) []Estimate {
	ex := make([]float64, len(x))
	inv := make([]float64, len(x))
	for j, v := range x {
		ex[j] = math.Exp(v)
		inv[j] = math.Exp(-v)
	}
	out := make([]Estimate, len(r.Strikes))
	live := make([]float64, 0, len(x))
	for i, k := range r.Strikes {
		s := sign(r.Types[i])
		mon := k / r.Forward
		live = live[:0]
		for j := range x {
			p := inv[j] * math.Max(s*(ex[j]-mon), 0.0)
			if finite(p) {
				live = append(live, p)
			}
		}
		out[i] = estimate(live, len(x), r.DF*r.Forward)
	}
	return out
}

// intrinsicOn prices max(s*(value - strike), 0) payoffs on a terminal value.
func (r Request) intrinsicOn(vals []float64, scale float64) []Estimate {
	out := make([]Estimate, len(r.Strikes))
	live := make([]float64, 0, len(vals))
	for i, k := range r.Strikes {
		s := sign(r.Types[i])
		live = live[:0]
		for _, v := range vals {
			p := math.Max(s*(v-k), 0.0)
			if finite(p) {
				live = append(live, p)
			}
		}
		out[i] = estimate(live, len(vals), scale)
	}
	return out
}

func estimate(live []float64, total int, scale float64) Estimate {
	e := Estimate{
		Live:    len(live),
		NaNRate: float64(total-len(live)) / float64(total),
	}
	if len(live) == 0 {
		e.Price, e.StdErr = math.NaN(), math.NaN()
		return e
	}
	mean, std := stat.MeanStdDev(live, nil)
	e.Price = scale * mean
	if len(live) > 1 {
		e.StdErr = scale * std / math.Sqrt(float64(len(live)))
	} else {
		e.StdErr = math.NaN()
	}
	return e
}

func sign(cp bsm.OptionType) float64 {
	if cp == bsm.Put {
		return -1.0
	}
	return 1.0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
