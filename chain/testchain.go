package chain

import "github.com/banachtech/stochvol/bsm"

// BTC returns a bitcoin options chain snapshot used by demos and tests:
// out-of-the-money quoting, strong short-dated smile convexity flattening out
// with maturity, the surface regime the reference parameter fit comes from.
func BTC() Chain {
	put, call := bsm.Put, bsm.Call
	return Chain{
		{
			TTM: 7.0 / 365.0, Forward: 45000.0, DF: 0.9995,
			Strikes: []float64{36000, 40000, 43000, 45000, 47000, 50000, 55000},
			Types:   []bsm.OptionType{put, put, put, call, call, call, call},
			Vols:    []float64{1.18, 0.97, 0.86, 0.825, 0.86, 0.97, 1.17},
		},
		{
			TTM: 14.0 / 365.0, Forward: 45050.0, DF: 0.999,
			Strikes: []float64{34000, 39000, 42500, 45000, 48000, 52000, 58000},
			Types:   []bsm.OptionType{put, put, put, call, call, call, call},
			Vols:    []float64{1.12, 0.95, 0.86, 0.83, 0.86, 0.95, 1.10},
		},
		{
			TTM: 1.0 / 12.0, Forward: 45200.0, DF: 0.998,
			Strikes: []float64{32000, 38000, 42000, 45000, 49000, 54000, 62000},
			Types:   []bsm.OptionType{put, put, put, call, call, call, call},
			Vols:    []float64{1.07, 0.94, 0.865, 0.84, 0.865, 0.93, 1.04},
		},
		{
			TTM: 1.0 / 6.0, Forward: 45500.0, DF: 0.9965,
			Strikes: []float64{30000, 36000, 41000, 45500, 50000, 57000, 66000},
			Types:   []bsm.OptionType{put, put, put, call, call, call, call},
			Vols:    []float64{1.03, 0.93, 0.87, 0.85, 0.87, 0.925, 1.00},
		},
		{
			TTM: 0.25, Forward: 45800.0, DF: 0.994,
			Strikes: []float64{28000, 35000, 41000, 46000, 52000, 60000, 70000},
			Types:   []bsm.OptionType{put, put, put, call, call, call, call},
			Vols:    []float64{1.00, 0.92, 0.875, 0.86, 0.875, 0.92, 0.985},
		},
		{
			TTM: 0.5, Forward: 46500.0, DF: 0.988,
			Strikes: []float64{25000, 33000, 40000, 46500, 54000, 64000, 78000},
			Types:   []bsm.OptionType{put, put, put, call, call, call, call},
			Vols:    []float64{0.985, 0.92, 0.885, 0.875, 0.885, 0.915, 0.97},
		},
	}
}
