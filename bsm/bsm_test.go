package bsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceKnownValues(t *testing.T) {
	testCases := []struct {
		name                          string
		forward, strike, ttm, vol, df float64
		cp                            OptionType
		want                          float64
	}{
		{name: "atm call", forward: 100, strike: 100, ttm: 1.0, vol: 0.2, df: 1.0, cp: Call, want: 7.9656},
		{name: "atm put equals call", forward: 100, strike: 100, ttm: 1.0, vol: 0.2, df: 1.0, cp: Put, want: 7.9656},
		{name: "discounted", forward: 100, strike: 100, ttm: 1.0, vol: 0.2, df: 0.95, cp: Call, want: 0.95 * 7.9656},
		{name: "itm call", forward: 110, strike: 100, ttm: 0.5, vol: 0.25, df: 1.0, cp: Call, want: 13.4406},
		{name: "zero ttm intrinsic", forward: 110, strike: 100, ttm: 0.0, vol: 0.25, df: 1.0, cp: Call, want: 10.0},
		{name: "zero vol intrinsic", forward: 90, strike: 100, ttm: 1.0, vol: 0.0, df: 1.0, cp: Put, want: 10.0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Price(tc.forward, tc.strike, tc.ttm, tc.vol, tc.df, tc.cp)
			require.InDelta(t, tc.want, got, 1e-2)
		})
	}
}

func TestPutCallParity(t *testing.T) {
	f, k, ttm, vol, df := 105.0, 97.0, 0.75, 0.35, 0.98
	c := Price(f, k, ttm, vol, df, Call)
	p := Price(f, k, ttm, vol, df, Put)
	require.InDelta(t, df*(f-k), c-p, 1e-10)
}

func TestVega(t *testing.T) {
	// atm forward vega = F * phi(0.5 v sqrt(T)) * sqrt(T)
	got := Vega(100, 100, 1.0, 0.2, 1.0)
	require.InDelta(t, 39.6953, got, 1e-3)
	require.Greater(t, got, Vega(100, 140, 1.0, 0.2, 1.0))
}

func TestImpliedVolRoundTrip(t *testing.T) {
	testCases := []struct {
		name                     string
		forward, strike, ttm, df float64
		vol                      float64
		cp                       OptionType
	}{
		{name: "atm", forward: 100, strike: 100, ttm: 1.0, df: 1.0, vol: 0.2, cp: Call},
		{name: "otm put", forward: 100, strike: 70, ttm: 0.5, df: 0.99, vol: 0.45, cp: Put},
		{name: "otm call high vol", forward: 1.0, strike: 1.6, ttm: 0.25, df: 1.0, vol: 0.9, cp: Call},
		{name: "short maturity", forward: 100, strike: 102, ttm: 1.0 / 52.0, df: 1.0, vol: 0.8, cp: Call},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			price := Price(tc.forward, tc.strike, tc.ttm, tc.vol, tc.df, tc.cp)
			iv, err := ImpliedVol(price, tc.forward, tc.strike, tc.ttm, tc.df, tc.cp)
			require.NoError(t, err)
			require.InDelta(t, tc.vol, iv, 1e-6)
		})
	}
}

func TestImpliedVolRejectsBadPrices(t *testing.T) {
	testCases := []struct {
		name  string
		price float64
		cp    OptionType
	}{
		{name: "below intrinsic call", price: 4.0, cp: Call},
		{name: "zero", price: 0.0, cp: Call},
		{name: "above forward", price: 120.0, cp: Call},
		{name: "put above strike", price: 101.0, cp: Put},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImpliedVol(tc.price, 105.0, 100.0, 1.0, 1.0, tc.cp)
			require.Error(t, err)
		})
	}
}

func TestBachelierRoundTrip(t *testing.T) {
	testCases := []struct {
		name                     string
		forward, strike, ttm, df float64
		vol                      float64
		cp                       OptionType
	}{
		{name: "atm", forward: 0.6, strike: 0.6, ttm: 1.0, df: 1.0, vol: 0.3, cp: Call},
		{name: "otm", forward: 0.6, strike: 0.9, ttm: 0.5, df: 0.97, vol: 0.5, cp: Call},
		{name: "big forward", forward: 30000, strike: 28000, ttm: 0.25, df: 1.0, vol: 9000, cp: Put},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			price := BachelierPrice(tc.forward, tc.strike, tc.ttm, tc.vol, tc.df, tc.cp)
			iv, err := BachelierImpliedVol(price, tc.forward, tc.strike, tc.ttm, tc.df, tc.cp)
			require.NoError(t, err)
			require.InEpsilon(t, tc.vol, iv, 1e-6)
		})
	}
}

func TestBachelierParity(t *testing.T) {
	f, k, ttm, vol, df := 0.55, 0.7, 0.5, 0.4, 0.99
	c := BachelierPrice(f, k, ttm, vol, df, Call)
	p := BachelierPrice(f, k, ttm, vol, df, Put)
	require.InDelta(t, df*(f-k), c-p, 1e-12)
}

func TestBachelierAtmClosedForm(t *testing.T) {
	// atm normal price = df * vol * sqrt(ttm / (2 pi))
	got := BachelierPrice(1.0, 1.0, 1.0, 0.25, 1.0, Call)
	require.InDelta(t, 0.25*0.3989422804, got, 1e-9)
}
