package calib

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/banachtech/stochvol/affine"
	"github.com/banachtech/stochvol/bsm"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/mc"
	"github.com/banachtech/stochvol/mgf"
	"github.com/banachtech/stochvol/payoff"
	"github.com/banachtech/stochvol/util"
)

// ErrRoughCalibration rejects initial guesses with hurst below one half. The
// calibration loop runs the standard scheme only.
var ErrRoughCalibration = errors.New("calib: calibration runs the standard scheme, hurst must be 0.5")

const (
	// Hinge weight large enough that a unit constraint violation dominates
	// any achievable vol residual.
	penaltyWeight = 1e4
	// Engine failures feed the optimizer a large finite loss instead of Inf,
	// which keeps the simplex contracting away from the bad region.
	badLoss = 1e10
)

// Calibrator fits model parameters to one option chain. The zero value is
// not usable, start from New and override fields as needed.
type Calibrator struct {
	Type         CalibrationType
	Constraint   ConstraintType
	Engine       Engine
	Measure      logsv.Measure
	Solver       affine.Solver
	Order        affine.Order
	Bounds       Bounds
	VegaWeighted bool
	Paths        int
	StepsPerYear int
	Seed         uint64
	// Progress, when set, receives the running evaluation count and loss
	// after every objective call.
	Progress func(evals int, loss float64)
}

// New returns a calibrator with the analytic engine, the params5 subset, the
// spot measure and default bounds.
func New() Calibrator {
	return Calibrator{
		Type:         Params5,
		Constraint:   Unconstrained,
		Engine:       Analytic,
		Measure:      logsv.Spot,
		Solver:       affine.NonStiff,
		Order:        affine.First,
		Bounds:       DefaultBounds(),
		VegaWeighted: true,
		Paths:        10000,
		StepsPerYear: 360,
		Seed:         10,
	}
}

// Result carries the fitted parameters and optimizer diagnostics.
type Result struct {
	Params logsv.Params `json:"params"`
	// Converged is true when the optimizer terminated normally and the
	// fitted parameters satisfy the configured constraints.
	Converged bool `json:"converged"`
	// ResidualNorm is the weighted sum of squared vol residuals at the
	// fitted parameters, without penalty terms.
	ResidualNorm float64 `json:"residual_norm"`
	Iterations   int     `json:"iterations"`
	FuncEvals    int     `json:"func_evals"`
	Status       string  `json:"status"`
}

// Fit calibrates to ch starting from init. Fields of init outside the
// floating subset are kept as given. The returned error reports optimizer
// failure; the Result still carries diagnostics in that case.
func (c Calibrator) Fit(ch chain.Chain, init logsv.Params) (Result, error) {
	if err := c.validate(ch, init); err != nil {
		return Result{}, err
	}
	obj, err := c.newObjective(ch, init)
	if err != nil {
		return Result{}, err
	}

	problem := optimize.Problem{Func: obj.eval}
	res, err := optimize.Minimize(problem, c.encode(init), nil, &optimize.NelderMead{})
	if res == nil {
		return Result{}, fmt.Errorf("calib: %w", err)
	}

	out := Result{
		Params:     obj.decode(res.X),
		Iterations: res.Stats.MajorIterations,
		FuncEvals:  res.Stats.FuncEvaluations,
		Status:     res.Status.String(),
	}
	out.ResidualNorm = obj.residual(out.Params)
	out.Converged = err == nil && c.Constraint.Satisfied(out.Params)
	if err != nil {
		return out, fmt.Errorf("calib: %w", err)
	}
	return out, nil
}

func (c Calibrator) validate(ch chain.Chain, init logsv.Params) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("calib: %w", err)
	}
	for i, sl := range ch {
		if len(sl.Vols) != len(sl.Strikes) {
			return fmt.Errorf("calib: slice %d carries %d market vols for %d strikes", i, len(sl.Vols), len(sl.Strikes))
		}
	}
	if err := init.Validate(); err != nil {
		return fmt.Errorf("calib: %w", err)
	}
	if init.IsRough() {
		return ErrRoughCalibration
	}
	if err := c.Bounds.validate(); err != nil {
		return err
	}
	switch c.Type {
	case Params4, Params5, ParamsWithVarswapFit:
	default:
		return fmt.Errorf("calib: unknown calibration type %v", c.Type)
	}
	switch c.Constraint {
	case Unconstrained, MmaMartingale, InverseMartingale, MmaMartingaleMoment4, InverseMartingaleMoment4:
	default:
		return fmt.Errorf("calib: unknown constraint type %v", c.Constraint)
	}
	if c.Engine == MC && (c.Paths <= 0 || c.StepsPerYear <= 0) {
		return fmt.Errorf("calib: mc engine needs positive paths and steps per year, got %d and %d", c.Paths, c.StepsPerYear)
	}
	return nil
}

// axes lists the [lo, hi] bound pairs of the floating parameters in
// optimizer order.
func (c Calibrator) axes() [][2]float64 {
	b := c.Bounds
	switch c.Type {
	case Params5:
		return [][2]float64{
			{b.Min.Sigma0, b.Max.Sigma0},
			{b.Min.Theta, b.Max.Theta},
			{b.Min.Kappa1, b.Max.Kappa1},
			{b.Min.Beta, b.Max.Beta},
			{b.Min.Volvol, b.Max.Volvol},
		}
	case ParamsWithVarswapFit:
		return [][2]float64{
			{b.Min.Beta, b.Max.Beta},
			{b.Min.Volvol, b.Max.Volvol},
		}
	default:
		return [][2]float64{
			{b.Min.Sigma0, b.Max.Sigma0},
			{b.Min.Theta, b.Max.Theta},
			{b.Min.Beta, b.Max.Beta},
			{b.Min.Volvol, b.Max.Volvol},
		}
	}
}

// values extracts the floating parameter values in optimizer order.
func (c Calibrator) values(p logsv.Params) []float64 {
	switch c.Type {
	case Params5:
		return []float64{p.Sigma0, p.Theta, p.Kappa1, p.Beta, p.Volvol}
	case ParamsWithVarswapFit:
		return []float64{p.Beta, p.Volvol}
	default:
		return []float64{p.Sigma0, p.Theta, p.Beta, p.Volvol}
	}
}

// encode maps the starting parameters into the unconstrained optimizer
// space.
func (c Calibrator) encode(p logsv.Params) []float64 {
	axes := c.axes()
	vals := c.values(p)
	u := make([]float64, len(vals))
	for i, v := range vals {
		u[i] = fromBox(v, axes[i][0], axes[i][1])
	}
	return u
}

func (c Calibrator) affineConfig() affine.Config {
	cfg := affine.DefaultConfig()
	cfg.Order = c.Order
	cfg.Measure = c.Measure
	cfg.Solver = c.Solver
	return cfg
}

func (c Calibrator) simulator(p logsv.Params) mc.Simulator {
	s := mc.NewSimulator(p)
	s.Measure = c.Measure
	s.StepsPerYear = c.StepsPerYear
	s.Paths = c.Paths
	return s
}

// hinges sums the quadratic penalties of the violated constraints.
func (c Calibrator) hinges(p logsv.Params) float64 {
	pen := 0.0
	for _, s := range c.Constraint.Slacks(p) {
		if s < 0.0 {
			pen += penaltyWeight * s * s
		}
	}
	return pen
}

// toBox maps an unconstrained coordinate into (lo, hi).
func toBox(u, lo, hi float64) float64 {
	return lo + 0.5*(hi-lo)*(math.Tanh(u)+1.0)
}

// fromBox inverts toBox, clamping strictly inside the box so the inverse
// stays finite when a seed sits on or outside a bound.
func fromBox(x, lo, hi float64) float64 {
	w := 2.0*(x-lo)/(hi-lo) - 1.0
	const edge = 1.0 - 1e-9
	if w < -edge {
		w = -edge
	} else if w > edge {
		w = edge
	}
	return math.Atanh(w)
}

// objective holds everything fixed across trials: market vols, weights, the
// transform grid unit and the frozen increments of the mc engine.
type objective struct {
	c       Calibrator
	ch      chain.Chain
	init    logsv.Params
	market  []float64
	weights []float64
	scale   float64
	varswap []float64
	frozen  []util.Increments
	evals   int
}

func (c Calibrator) newObjective(ch chain.Chain, init logsv.Params) (*objective, error) {
	o := &objective{
		c:       c,
		ch:      ch,
		init:    init,
		market:  flatVols(ch),
		weights: c.flatWeights(ch),
	}

	switch c.Engine {
	case Analytic:
		// Freeze the integration grid on the chain's ATM level so every
		// trial prices on identical contours.
		v, err := mgf.ChainVolScale(ch)
		if err != nil {
			return nil, err
		}
		o.scale = v
	case MC:
		sim := c.simulator(init)
		steps, err := sim.ChainSteps(ch.TTMs())
		if err != nil {
			return nil, err
		}
		o.frozen = util.FrozenChain(util.NewRand(c.Seed), steps, c.Paths)
	default:
		return nil, fmt.Errorf("calib: unknown engine %v", c.Engine)
	}

	if c.Type == ParamsWithVarswapFit {
		o.varswap = ch.VarswapVols()
		for i, v := range o.varswap {
			if math.IsNaN(v) || !(v > 0.0) {
				return nil, fmt.Errorf("calib: varswap fit needs quoted vols on slice %d", i)
			}
		}
	}
	return o, nil
}

func (o *objective) eval(u []float64) float64 {
	loss := badLoss
	if p, err := o.trial(u); err == nil {
		loss = o.lossAt(p)
	}
	o.evals++
	if o.c.Progress != nil {
		o.c.Progress(o.evals, loss)
	}
	return loss
}

// trial decodes optimizer coordinates and applies the per-trial backbone
// refit of the varswap mode.
func (o *objective) trial(u []float64) (logsv.Params, error) {
	p := o.decode(u)
	if o.c.Type == ParamsWithVarswapFit {
		return logsv.FitBackboneToVarswaps(p, o.ch.TTMs(), o.varswap)
	}
	return p, nil
}

// decode maps optimizer coordinates back to parameters. Fields outside the
// floating subset keep their initial values.
func (o *objective) decode(u []float64) logsv.Params {
	axes := o.c.axes()
	v := make([]float64, len(u))
	for i, ui := range u {
		v[i] = toBox(ui, axes[i][0], axes[i][1])
	}
	p := o.init
	switch o.c.Type {
	case Params5:
		p.Sigma0, p.Theta, p.Kappa1, p.Beta, p.Volvol = v[0], v[1], v[2], v[3], v[4]
		p.Kappa2 = p.Kappa1 / p.Theta
	case ParamsWithVarswapFit:
		p.Beta, p.Volvol = v[0], v[1]
	default:
		p.Sigma0, p.Theta, p.Beta, p.Volvol = v[0], v[1], v[2], v[3]
	}
	return p
}

func (o *objective) lossAt(p logsv.Params) float64 {
	r := o.residual(p)
	if math.IsNaN(r) {
		return badLoss
	}
	return r + o.c.hinges(p)
}

// residual is the weighted sum of squared vol differences. Quotes where
// either side fails to produce a vol drop out of the sum; an engine failure
// yields NaN.
func (o *objective) residual(p logsv.Params) float64 {
	model, err := o.modelVols(p)
	if err != nil {
		return math.NaN()
	}
	r := 0.0
	for i, mv := range model {
		if math.IsNaN(mv) || math.IsNaN(o.market[i]) {
			continue
		}
		d := mv - o.market[i]
		r += o.weights[i] * d * d
	}
	return r
}

func (o *objective) modelVols(p logsv.Params) ([]float64, error) {
	if o.c.Engine == MC {
		return o.mcVols(p)
	}
	return o.analyticVols(p)
}

func (o *objective) analyticVols(p logsv.Params) ([]float64, error) {
	pr, err := mgf.NewPricer(p, o.c.affineConfig())
	if err != nil {
		return nil, err
	}
	prices, err := pr.WithVolScale(o.scale).VanillaChain(o.ch)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(o.market))
	for i, sl := range o.ch {
		for j := range sl.Strikes {
			out = append(out, quoteImpliedVol(sl, j, prices[i][j]))
		}
	}
	return out, nil
}

func (o *objective) mcVols(p logsv.Params) ([]float64, error) {
	states, err := o.c.simulator(p).ChainFrozen(o.frozen, o.ch.TTMs())
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(o.market))
	for i, sl := range o.ch {
		ests, err := payoff.Aggregate(payoff.Request{
			Variable: logsv.LogReturn,
			Measure:  o.c.Measure,
			TTM:      sl.TTM,
			Forward:  sl.Forward,
			DF:       sl.DF,
			Strikes:  sl.Strikes,
			Types:    sl.Types,
		}, states[i])
		if err != nil {
			return nil, err
		}
		for j := range sl.Strikes {
			out = append(out, quoteImpliedVol(sl, j, ests[j].Price))
		}
	}
	return out, nil
}

// quoteImpliedVol inverts one model price, mapping inversion failures to NaN
// so they drop out of the residual.
func quoteImpliedVol(sl chain.Slice, j int, price float64) float64 {
	iv, err := bsm.ImpliedVol(price, sl.Forward, sl.Strikes[j], sl.TTM, sl.DF, sl.Types[j])
	if err != nil {
		return math.NaN()
	}
	return iv
}

func flatVols(ch chain.Chain) []float64 {
	out := make([]float64, 0, quoteCount(ch))
	for _, sl := range ch {
		out = append(out, sl.Vols...)
	}
	return out
}

func (c Calibrator) flatWeights(ch chain.Chain) []float64 {
	out := make([]float64, 0, quoteCount(ch))
	for _, sl := range ch {
		if c.VegaWeighted {
			out = append(out, sl.VegaWeights()...)
		} else {
			for range sl.Strikes {
				out = append(out, 1.0)
			}
		}
	}
	return out
}

func quoteCount(ch chain.Chain) int {
	n := 0
	for _, sl := range ch {
		n += len(sl.Strikes)
	}
	return n
}
