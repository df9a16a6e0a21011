// Package bsm prices forward-settled European options under the Black-Scholes
// and Bachelier models and inverts them for implied volatilities. Prices are
// quoted off the forward: Price(F, K, ...) * df, no rates or carry inside.
package bsm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Option side flags as they appear in chain data.
type OptionType string

const (
	Call OptionType = "C"
	Put  OptionType = "P"
)

const (
	volLo = 1e-6
	volHi = 20.0
)

var stdNormal = distuv.Normal{Mu: 0.0, Sigma: 1.0}

// Price computes the discounted Black-Scholes price on a forward.
// Zero maturity or volatility degenerate to discounted intrinsic value.
func Price(forward, strike, ttm, vol, df float64, cp OptionType) float64 {
	if ttm <= 0.0 || vol <= 0.0 {
		return df * intrinsic(forward, strike, cp)
	}
	v := vol * math.Sqrt(ttm)
	d1 := (math.Log(forward/strike) + 0.5*v*v) / v
	d2 := d1 - v
	if cp == Put {
		return df * (strike*stdNormal.CDF(-d2) - forward*stdNormal.CDF(-d1))
	}
	return df * (forward*stdNormal.CDF(d1) - strike*stdNormal.CDF(d2))
}

// Vega is the sensitivity of Price to vol, identical for calls and puts.
func Vega(forward, strike, ttm, vol, df float64) float64 {
	if ttm <= 0.0 || vol <= 0.0 {
		return 0.0
	}
	v := vol * math.Sqrt(ttm)
	d1 := (math.Log(forward/strike) + 0.5*v*v) / v
	return df * forward * stdNormal.Prob(d1) * math.Sqrt(ttm)
}

// Delta is the forward delta.
func Delta(forward, strike, ttm, vol float64, cp OptionType) float64 {
	if ttm <= 0.0 || vol <= 0.0 {
		if intrinsic(forward, strike, cp) > 0.0 {
			if cp == Put {
				return -1.0
			}
			return 1.0
		}
		return 0.0
	}
	v := vol * math.Sqrt(ttm)
	d1 := (math.Log(forward/strike) + 0.5*v*v) / v
	if cp == Put {
		return stdNormal.CDF(d1) - 1.0
	}
	return stdNormal.CDF(d1)
}

func intrinsic(forward, strike float64, cp OptionType) float64 {
	if cp == Put {
		return math.Max(strike-forward, 0.0)
	}
	return math.Max(forward-strike, 0.0)
}

// ImpliedVol inverts the Black-Scholes price by Newton iteration with a
// bisection fallback when the vega flattens or the iterate leaves the
// bracket. Prices at or below intrinsic, or above the model ceiling, error.
func ImpliedVol(price, forward, strike, ttm, df float64, cp OptionType) (float64, error) {
	if ttm <= 0.0 {
		return 0.0, fmt.Errorf("implied vol undefined for ttm %v", ttm)
	}
	if df <= 0.0 || forward <= 0.0 || strike <= 0.0 {
		return 0.0, fmt.Errorf("implied vol needs positive forward, strike, df")
	}
	lo := df * intrinsic(forward, strike, cp)
	hi := df * forward
	if cp == Put {
		hi = df * strike
	}
	if price <= lo || price >= hi {
		return 0.0, fmt.Errorf("price %v outside arbitrage bounds (%v, %v)", price, lo, hi)
	}

	// Brenner-Subrahmanyam start, good near the money
	v := math.Sqrt(2.0*math.Pi/ttm) * price / (df * forward)
	v = math.Min(math.Max(v, 0.05), 2.0)
	for i := 0; i < 50; i++ {
		diff := Price(forward, strike, ttm, v, df, cp) - price
		if math.Abs(diff) < 1e-12*df*forward {
			return v, nil
		}
		vega := Vega(forward, strike, ttm, v, df)
		if vega < 1e-12 {
			break
		}
		next := v - diff/vega
		if next <= volLo || next >= volHi {
			break
		}
		if math.Abs(next-v) < 1e-12 {
			return next, nil
		}
		v = next
	}
	return bisectVol(price, volLo, volHi, func(vol float64) float64 {
		return Price(forward, strike, ttm, vol, df, cp)
	})
}

// bisectVol solves price(vol) = target on [lo, hi]; price must be increasing
// in vol, which both models guarantee.
func bisectVol(target, lo, hi float64, price func(float64) float64) (float64, error) {
	if price(lo) > target || price(hi) < target {
		return 0.0, fmt.Errorf("no vol in [%v, %v] reprices %v", lo, hi, target)
	}
	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		if price(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-12*(1.0+hi) {
			break
		}
	}
	return 0.5 * (lo + hi), nil
}
