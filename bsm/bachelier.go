package bsm

import (
	"fmt"
	"math"
)

// BachelierPrice computes the discounted normal-model price on a forward.
// Normal vols are the quoting convention for rate-style underlyings and a
// useful second axis for quadratic-variation slices.
func BachelierPrice(forward, strike, ttm, normalVol, df float64, cp OptionType) float64 {
	if ttm <= 0.0 || normalVol <= 0.0 {
		return df * intrinsic(forward, strike, cp)
	}
	v := normalVol * math.Sqrt(ttm)
	d := (forward - strike) / v
	call := df * ((forward-strike)*stdNormal.CDF(d) + v*stdNormal.Prob(d))
	if cp == Put {
		return call - df*(forward-strike)
	}
	return call
}

// BachelierVega is dPrice/dNormalVol.
func BachelierVega(forward, strike, ttm, normalVol, df float64) float64 {
	if ttm <= 0.0 || normalVol <= 0.0 {
		return 0.0
	}
	v := normalVol * math.Sqrt(ttm)
	d := (forward - strike) / v
	return df * math.Sqrt(ttm) * stdNormal.Prob(d)
}

// BachelierImpliedVol inverts the normal-model price, Newton from the exact
// at-the-money solution with the same bisection fallback as the log-normal
// inversion.
func BachelierImpliedVol(price, forward, strike, ttm, df float64, cp OptionType) (float64, error) {
	if ttm <= 0.0 || df <= 0.0 {
		return 0.0, fmt.Errorf("bachelier implied vol needs positive ttm and df")
	}
	if price <= df*intrinsic(forward, strike, cp) {
		return 0.0, fmt.Errorf("price %v at or below intrinsic", price)
	}

	// straddle-time-value seed; exact when forward == strike
	timeValue := price - df*intrinsic(forward, strike, cp)
	v := timeValue / df * math.Sqrt(2.0*math.Pi/ttm)
	v = math.Max(v, 1e-8)
	for i := 0; i < 50; i++ {
		diff := BachelierPrice(forward, strike, ttm, v, df, cp) - price
		if math.Abs(diff) < 1e-14*(1.0+math.Abs(price)) {
			return v, nil
		}
		vega := BachelierVega(forward, strike, ttm, v, df)
		if vega < 1e-14 {
			break
		}
		next := v - diff/vega
		if next <= 0.0 {
			break
		}
		v = next
	}
	hi := 10.0 * (math.Abs(forward) + math.Abs(strike) + 1.0) / math.Sqrt(ttm)
	return bisectVol(price, 1e-10, hi, func(vol float64) float64 {
		return BachelierPrice(forward, strike, ttm, vol, df, cp)
	})
}
