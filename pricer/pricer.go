// Package pricer is the user-facing facade. One configured value prices
// through the transform, simulates through the standard or rough scheme and
// cross-checks the two engines, routing each parameter set by its hurst
// exponent.
package pricer

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/banachtech/stochvol/affine"
	"github.com/banachtech/stochvol/bsm"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/mc"
	"github.com/banachtech/stochvol/mgf"
	"github.com/banachtech/stochvol/payoff"
)

// ErrRoughTransform rejects transform pricing of rough parameter sets; the
// affine expansion covers the standard dynamics only.
var ErrRoughTransform = errors.New("pricer: transform pricing needs hurst 0.5, use the simulation methods for rough parameters")

// Config collects the engine knobs shared by the facade methods.
type Config struct {
	Affine       affine.Config
	Paths        int
	StepsPerYear int
	Seed         uint64
}

// DefaultConfig runs the first-order expansion under the spot measure with
// the full Monte Carlo defaults.
func DefaultConfig() Config {
	return Config{
		Affine:       affine.DefaultConfig(),
		Paths:        mc.DefaultPaths,
		StepsPerYear: mc.DefaultStepsPerYear,
		Seed:         42,
	}
}

// LogSvPricer prices one parameter set per call; the same value can be
// reused across parameter sets and requests.
type LogSvPricer struct {
	Config Config
}

// New returns a facade on the default configuration.
func New() LogSvPricer {
	return LogSvPricer{Config: DefaultConfig()}
}

func (lp LogSvPricer) transform(p logsv.Params) (*mgf.Pricer, error) {
	if p.IsRough() {
		return nil, ErrRoughTransform
	}
	return mgf.NewPricer(p, lp.Config.Affine)
}

func (lp LogSvPricer) simulator(p logsv.Params) mc.Simulator {
	s := mc.NewSimulator(p)
	s.Measure = lp.Config.Affine.Measure
	s.BackboneInDrift = lp.Config.Affine.BackboneInDrift
	s.StepsPerYear = lp.Config.StepsPerYear
	s.Paths = lp.Config.Paths
	return s
}

func (lp LogSvPricer) roughSimulator(p logsv.Params) mc.RoughSimulator {
	s := mc.NewRoughSimulator(p)
	s.Measure = lp.Config.Affine.Measure
	s.StepsPerYear = lp.Config.StepsPerYear
	s.Paths = lp.Config.Paths
	return s
}

// PriceChain prices every quote of the chain through the transform.
func (lp LogSvPricer) PriceChain(p logsv.Params, ch chain.Chain) ([][]float64, error) {
	pr, err := lp.transform(p)
	if err != nil {
		return nil, err
	}
	return pr.VanillaChain(ch)
}

// ImpliedVols prices the chain and inverts each quote back to a
// Black-Scholes vol, NaN where the inversion fails.
func (lp LogSvPricer) ImpliedVols(p logsv.Params, ch chain.Chain) ([][]float64, error) {
	prices, err := lp.PriceChain(p, ch)
	if err != nil {
		return nil, err
	}
	return invertChain(ch, prices), nil
}

// PriceQvarSlice prices quadratic-variation options at one maturity and
// returns the model varswap forward alongside.
func (lp LogSvPricer) PriceQvarSlice(p logsv.Params, ttm, df float64, strikes []float64, types []bsm.OptionType) ([]float64, float64, error) {
	pr, err := lp.transform(p)
	if err != nil {
		return nil, 0.0, err
	}
	prices, err := pr.QvarSlice(ttm, df, strikes, types)
	if err != nil {
		return nil, 0.0, err
	}
	fwd, err := pr.QvarForward(ttm)
	if err != nil {
		return nil, 0.0, err
	}
	return prices, fwd, nil
}

// Density evaluates the terminal density of the variable on the supplied
// abscissae.
func (lp LogSvPricer) Density(p logsv.Params, vt logsv.VariableType, ttm float64, xs []float64) ([]float64, error) {
	pr, err := lp.transform(p)
	if err != nil {
		return nil, err
	}
	switch vt {
	case logsv.LogReturn:
		return pr.DensityX(ttm, xs)
	case logsv.QVar:
		return pr.DensityQvar(ttm, xs)
	case logsv.Sigma:
		return pr.DensitySigma(ttm, xs)
	}
	return nil, fmt.Errorf("pricer: unknown variable type %v", vt)
}

// SimulateTerminal draws terminal states, routing rough parameter sets to
// the lifted scheme.
func (lp LogSvPricer) SimulateTerminal(p logsv.Params, rng *rand.Rand, ttm float64) (mc.State, error) {
	if p.IsRough() {
		return lp.roughSimulator(p).Terminal(rng, ttm)
	}
	return lp.simulator(p).Terminal(rng, ttm)
}

// SimulateVolPaths returns the time grid and vol path panel of the matching
// scheme.
func (lp LogSvPricer) SimulateVolPaths(p logsv.Params, rng *rand.Rand, ttm float64) ([]float64, [][]float64, error) {
	if p.IsRough() {
		return lp.roughSimulator(p).VolPaths(rng, ttm)
	}
	return lp.simulator(p).VolPaths(rng, ttm)
}

// chainStates simulates the chain maturities. The standard scheme continues
// one state across slices; the rough scheme restarts per maturity over a
// shared increment pool.
func (lp LogSvPricer) chainStates(p logsv.Params, rng *rand.Rand, ttms []float64) ([]mc.State, error) {
	if p.IsRough() {
		rs := lp.roughSimulator(p)
		steps, err := rs.PoolSteps(ttms)
		if err != nil {
			return nil, err
		}
		return rs.ChainFrozen(mc.DrawRoughIncrements(rng, steps, lp.Config.Paths), ttms)
	}
	return lp.simulator(p).Chain(rng, ttms)
}

func (lp LogSvPricer) aggregate(sl chain.Slice, st mc.State) ([]payoff.Estimate, error) {
	return payoff.Aggregate(payoff.Request{
		Variable: logsv.LogReturn,
		Measure:  lp.Config.Affine.Measure,
		TTM:      sl.TTM,
		Forward:  sl.Forward,
		DF:       sl.DF,
		Strikes:  sl.Strikes,
		Types:    sl.Types,
	}, st)
}

// MCImpliedVols simulates the chain and inverts the Monte Carlo prices per
// quote, NaN where the inversion fails.
func (lp LogSvPricer) MCImpliedVols(p logsv.Params, ch chain.Chain, rng *rand.Rand) ([][]float64, error) {
	if err := ch.Validate(); err != nil {
		return nil, fmt.Errorf("pricer: %w", err)
	}
	states, err := lp.chainStates(p, rng, ch.TTMs())
	if err != nil {
		return nil, err
	}
	prices := make([][]float64, len(ch))
	for i, sl := range ch {
		ests, err := lp.aggregate(sl, states[i])
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(ests))
		for j, est := range ests {
			row[j] = est.Price
		}
		prices[i] = row
	}
	return invertChain(ch, prices), nil
}

// BenchmarkRow cross-checks one quote: the transform price against the
// Monte Carlo estimate with its 95% band.
type BenchmarkRow struct {
	TTM       float64        `json:"ttm"`
	Strike    float64        `json:"strike"`
	Type      bsm.OptionType `json:"type"`
	Transform float64        `json:"transform"`
	MC        float64        `json:"mc"`
	StdErr    float64        `json:"std_err"`
	Low       float64        `json:"low"`
	High      float64        `json:"high"`
}

// Benchmark prices the chain on both engines and reports per-quote
// agreement bands.
func (lp LogSvPricer) Benchmark(p logsv.Params, ch chain.Chain, rng *rand.Rand) ([]BenchmarkRow, error) {
	transform, err := lp.PriceChain(p, ch)
	if err != nil {
		return nil, err
	}
	states, err := lp.chainStates(p, rng, ch.TTMs())
	if err != nil {
		return nil, err
	}
	n := 0
	for _, sl := range ch {
		n += len(sl.Strikes)
	}
	rows := make([]BenchmarkRow, 0, n)
	for i, sl := range ch {
		ests, err := lp.aggregate(sl, states[i])
		if err != nil {
			return nil, err
		}
		for j := range sl.Strikes {
			band := 1.96 * ests[j].StdErr
			rows = append(rows, BenchmarkRow{
				TTM:       sl.TTM,
				Strike:    sl.Strikes[j],
				Type:      sl.Types[j],
				Transform: transform[i][j],
				MC:        ests[j].Price,
				StdErr:    ests[j].StdErr,
				Low:       ests[j].Price - band,
				High:      ests[j].Price + band,
			})
		}
	}
	return rows, nil
}

// invertChain maps prices to Black-Scholes vols quote by quote.
func invertChain(ch chain.Chain, prices [][]float64) [][]float64 {
	out := make([][]float64, len(ch))
	for i, sl := range ch {
		row := make([]float64, len(sl.Strikes))
		for j := range sl.Strikes {
			iv, err := bsm.ImpliedVol(prices[i][j], sl.Forward, sl.Strikes[j], sl.TTM, sl.DF, sl.Types[j])
			if err != nil {
				iv = math.NaN()
			}
			row[j] = iv
		}
		out[i] = row
	}
	return out
}
