// Package chain holds option-chain market data the way the pricing and
// calibration layers consume it: per-maturity aligned arrays of strikes,
// option sides and quoted implied vols, read-only once built.
package chain

import (
	"errors"
	"fmt"
	"math"

	"github.com/banachtech/stochvol/bsm"
)

// Slice is one maturity of an option chain. Strikes, Types and Vols share
// indexing; Vols may be empty when the slice only describes instruments to
// price rather than market quotes.
type Slice struct {
	TTM     float64          `json:"ttm"`
	Forward float64          `json:"forward"`
	DF      float64          `json:"df"`
	Strikes []float64        `json:"strikes"`
	Types   []bsm.OptionType `json:"types"`
	Vols    []float64        `json:"vols,omitempty"`
}

// Chain is a maturity-sorted sequence of slices.
type Chain []Slice

// Validate checks array alignment and basic sanity of every slice plus
// strictly increasing maturities across the chain.
func (c Chain) Validate() error {
	if len(c) == 0 {
		return errors.New("empty chain")
	}
	prev := 0.0
	for i, s := range c {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
		if s.TTM <= prev {
			return fmt.Errorf("slice %d: maturities must be strictly increasing", i)
		}
		prev = s.TTM
	}
	return nil
}

func (s Slice) Validate() error {
	if !(s.TTM > 0.0) {
		return fmt.Errorf("ttm must be positive, got %v", s.TTM)
	}
	if !(s.Forward > 0.0) || !(s.DF > 0.0) {
		return fmt.Errorf("forward and df must be positive, got %v, %v", s.Forward, s.DF)
	}
	if len(s.Strikes) == 0 {
		return errors.New("no strikes")
	}
	if len(s.Types) != len(s.Strikes) {
		return errors.New("types and strikes must be aligned")
	}
	if len(s.Vols) != 0 && len(s.Vols) != len(s.Strikes) {
		return errors.New("vols and strikes must be aligned")
	}
	for _, k := range s.Strikes {
		if !(k > 0.0) {
			return errors.New("strikes must be positive")
		}
	}
	for _, ot := range s.Types {
		if ot != bsm.Call && ot != bsm.Put {
			return fmt.Errorf("unknown option type %q", ot)
		}
	}
	return nil
}

// TTMs lists the chain maturities in order.
func (c Chain) TTMs() []float64 {
	out := make([]float64, len(c))
	for i, s := range c {
		out[i] = s.TTM
	}
	return out
}

// ATMIndex is the position of the strike closest to the forward.
func (s Slice) ATMIndex() int {
	best, dist := 0, math.Inf(1)
	for i, k := range s.Strikes {
		if d := math.Abs(k - s.Forward); d < dist {
			best, dist = i, d
		}
	}
	return best
}

// ATMVol is the quoted vol at the ATMIndex strike, NaN without quotes.
func (s Slice) ATMVol() float64 {
	if len(s.Vols) == 0 {
		return math.NaN()
	}
	return s.Vols[s.ATMIndex()]
}

// ATMVols collects the at-the-money vol of every slice.
func (c Chain) ATMVols() []float64 {
	out := make([]float64, len(c))
	for i, s := range c {
		out[i] = s.ATMVol()
	}
	return out
}

// VarswapVols estimates per-slice variance-swap strikes in vol units from the
// quoted smile: root-mean-square of the usable quotes, floored at the
// at-the-money vol so sparse wings cannot pull the strike below the smile
// bottom. Slices without quotes come back NaN.
func (c Chain) VarswapVols() []float64 {
	out := make([]float64, len(c))
	for i, s := range c {
		atm := s.ATMVol()
		ss, n := 0.0, 0
		for _, v := range s.Vols {
			if v > 0.0 && !math.IsNaN(v) {
				ss += v * v
				n++
			}
		}
		if n == 0 {
			out[i] = atm
			continue
		}
		rms := math.Sqrt(ss / float64(n))
		if !math.IsNaN(atm) && atm > rms {
			rms = atm
		}
		out[i] = rms
	}
	return out
}

// VegaWeights computes Black-Scholes vegas at the quoted vols, normalized to
// sum to one within the slice so maturities with more quotes do not dominate
// a stacked objective. Quotes without a usable vol get zero weight.
func (s Slice) VegaWeights() []float64 {
	w := make([]float64, len(s.Strikes))
	if len(s.Vols) == 0 {
		return w
	}
	total := 0.0
	for i, k := range s.Strikes {
		v := s.Vols[i]
		if !(v > 0.0) || math.IsNaN(v) {
			continue
		}
		w[i] = bsm.Vega(s.Forward, k, s.TTM, v, s.DF)
		total += w[i]
	}
	if total <= 0.0 {
		return w
	}
	for i := range w {
		w[i] /= total
	}
	return w
}
