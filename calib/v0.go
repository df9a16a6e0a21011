package calib

import (
	"errors"
	"fmt"
	"math"

	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
)

// V0Implied inverts a short-maturity expansion of the ATM vol for the spot
// vol level sigma0. Degenerate inputs, a skew beyond unit size, a vanishing
// quadratic or a negative discriminant, fall back to the leading-order
// correction atm - vartheta^2 ttm / 4.
func V0Implied(p logsv.Params, atm, ttm float64) float64 {
	vartheta2 := p.Vartheta2()
	simple := atm - 0.25*vartheta2*ttm
	if math.Abs(p.Beta) > 1.0 {
		return simple
	}
	denom := 12.0 * p.Beta * ttm
	if math.Abs(denom) <= 1e-10 {
		return simple
	}
	b := 24.0 + p.Beta*p.Beta*ttm + 2.0*vartheta2*ttm - 12.0*p.Kappa1*ttm
	disc := b*b - 288.0*p.Beta*ttm*(p.Theta*p.Kappa1*ttm-2.0*atm)
	if disc < 0.0 {
		return simple
	}
	return (-b + math.Sqrt(disc)) / denom
}

// InitialGuess seeds a calibration from the chain's front slice, replacing
// the sigma0 of base with the implied spot vol level. A non-positive
// inversion falls back to the ATM vol itself.
func InitialGuess(ch chain.Chain, base logsv.Params) (logsv.Params, error) {
	if err := ch.Validate(); err != nil {
		return logsv.Params{}, fmt.Errorf("calib: %w", err)
	}
	atm := ch[0].ATMVol()
	if math.IsNaN(atm) || !(atm > 0.0) {
		return logsv.Params{}, errors.New("calib: front slice has no usable atm vol")
	}
	v0 := V0Implied(base, atm, ch[0].TTM)
	if !(v0 > 0.0) {
		v0 = atm
	}
	return base.WithSigma0(v0), nil
}
