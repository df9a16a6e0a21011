package logsv

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Params of the log-normal stochastic volatility model
//
//	dX = alpha*0.5*eta^2*sigma^2 dt + eta*sigma dW0
//	dsigma = (kappa1 + kappa2*sigma)*(theta - sigma) dt + beta*sigma dW0 + volvol*sigma dW1
//
// with X the forward log-return, sigma the instantaneous vol, eta the
// deterministic vol backbone and alpha the measure drift sign. H is the Hurst
// exponent: 0.5 runs the standard scheme, values below 0.5 the rough kernel.
// Params is a value type; pricing and simulation calls never mutate it.
type Params struct {
	Sigma0   float64  `json:"sigma0"`
	Theta    float64  `json:"theta"`
	Kappa1   float64  `json:"kappa1"`
	Kappa2   float64  `json:"kappa2"`
	Beta     float64  `json:"beta"`
	Volvol   float64  `json:"volvol"`
	H        float64  `json:"hurst,omitempty"`
	Backbone Backbone `json:"backbone,omitempty"`
}

// Backbone is a piecewise-constant term-structure multiplier on the stochastic
// volatility factor: eta(t) = Etas[i] for t in (TTMs[i-1], TTMs[i]], held flat
// beyond the last pillar. An empty backbone means eta = 1 everywhere.
type Backbone struct {
	TTMs []float64 `json:"ttms,omitempty"`
	Etas []float64 `json:"etas,omitempty"`
}

// BTCParams is the reference bitcoin surface fit used by tests and demos.
var BTCParams = Params{
	Sigma0: 0.8376,
	Theta:  1.0413,
	Kappa1: 3.1844,
	Kappa2: 3.058,
	Beta:   0.1514,
	Volvol: 1.8458,
	H:      0.5,
}

// NewParams builds a parameter set with H = 0.5. A negative kappa2 asks for
// the linked value kappa2 = kappa1/theta, which keeps kappa1*(theta-sigma) and
// kappa2*sigma*(theta-sigma) balanced at sigma = theta.
func NewParams(sigma0, theta, kappa1, kappa2, beta, volvol float64) Params {
	if kappa2 < 0 {
		kappa2 = kappa1 / theta
	}
	return Params{Sigma0: sigma0, Theta: theta, Kappa1: kappa1, Kappa2: kappa2, Beta: beta, Volvol: volvol, H: 0.5}
}

// Validate checks the structural invariants of the parameter set.
func (p Params) Validate() error {
	if !(p.Sigma0 > 0.0) {
		return fmt.Errorf("sigma0 must be positive, got %v", p.Sigma0)
	}
	if !(p.Theta > 0.0) {
		return fmt.Errorf("theta must be positive, got %v", p.Theta)
	}
	if p.Kappa1 < 0.0 || p.Kappa2 < 0.0 {
		return fmt.Errorf("mean-reversion speeds must be non-negative, got kappa1=%v kappa2=%v", p.Kappa1, p.Kappa2)
	}
	if p.Volvol < 0.0 {
		return fmt.Errorf("volvol must be non-negative, got %v", p.Volvol)
	}
	if !(p.H > 0.0 && p.H <= 0.5) {
		return fmt.Errorf("hurst exponent must lie in (0, 0.5], got %v", p.H)
	}
	if len(p.Backbone.TTMs) != len(p.Backbone.Etas) {
		return errors.New("backbone ttms and etas must have equal length")
	}
	for i, t := range p.Backbone.TTMs {
		if i > 0 && t <= p.Backbone.TTMs[i-1] {
			return errors.New("backbone ttms must be strictly increasing")
		}
		if !(p.Backbone.Etas[i] > 0.0) {
			return errors.New("backbone etas must be positive")
		}
	}
	return nil
}

// Vartheta2 is the total vol-of-vol variance rate beta^2 + volvol^2.
func (p Params) Vartheta2() float64 {
	return p.Beta*p.Beta + p.Volvol*p.Volvol
}

// Kappa is the effective mean-reversion speed kappa1 + kappa2*theta.
func (p Params) Kappa() float64 {
	return p.Kappa1 + p.Kappa2*p.Theta
}

func (p Params) Theta2() float64 {
	return p.Theta * p.Theta
}

// IsRough reports whether the Hurst exponent selects the rough regime.
func (p Params) IsRough() bool {
	return p.H > 0.0 && p.H < 0.5
}

// BackboneEta looks up the backbone multiplier at maturity t.
func (p Params) BackboneEta(t float64) float64 {
	n := len(p.Backbone.TTMs)
	if n == 0 {
		return 1.0
	}
	for i, ttm := range p.Backbone.TTMs {
		if t <= ttm {
			return p.Backbone.Etas[i]
		}
	}
	return p.Backbone.Etas[n-1]
}

// WithBackbone returns a copy of the parameters carrying the given backbone
// pillars. The slices are copied, so the receiver and the result never alias.
func (p Params) WithBackbone(ttms, etas []float64) (Params, error) {
	if len(ttms) != len(etas) {
		return p, errors.New("backbone ttms and etas must have equal length")
	}
	q := p
	q.Backbone = Backbone{
		TTMs: append([]float64(nil), ttms...),
		Etas: append([]float64(nil), etas...),
	}
	if err := q.Validate(); err != nil {
		return p, err
	}
	return q, nil
}

// WithSigma0 returns a copy with the initial vol replaced.
func (p Params) WithSigma0(sigma0 float64) Params {
	p.Sigma0 = sigma0
	return p
}

// XGrid spans the log-return range covered by roughly five standard deviations
// at the given maturity, for density diagnostics and histograms.
func (p Params) XGrid(ttm float64, n int) []float64 {
	w := 5.0 * p.Sigma0 * math.Sqrt(ttm)
	return floats.Span(make([]float64, n), -w, w)
}

// SigmaGrid spans the volatility range [0, theta + 5 sized excursions].
func (p Params) SigmaGrid(ttm float64, n int) []float64 {
	w := p.Theta + 5.0*p.Sigma0*math.Sqrt(p.Vartheta2()*ttm)
	return floats.Span(make([]float64, n), 0.0, w)
}

// QvarGrid spans the annualized quadratic-variation range.
func (p Params) QvarGrid(ttm float64, n int) []float64 {
	s2 := p.Sigma0 * p.Sigma0
	w := s2 + 5.0*s2*math.Sqrt(p.Vartheta2()*ttm)
	return floats.Span(make([]float64, n), 0.0, w)
}
