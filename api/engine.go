package api

import (
	"github.com/banachtech/stochvol/calib"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/pricer"
)

// Engine is the pricing surface behind the HTTP handlers.
type Engine interface {
	PriceChain(p logsv.Params, ch chain.Chain) ([][]float64, error)
	ImpliedVols(p logsv.Params, ch chain.Chain) ([][]float64, error)
	Calibrate(cal calib.Calibrator, ch chain.Chain, init logsv.Params) (calib.Result, error)
}

type logsvEngine struct {
	lp pricer.LogSvPricer
}

// NewEngine adapts the pricer facade to the server's engine interface.
func NewEngine(lp pricer.LogSvPricer) Engine {
	return logsvEngine{lp: lp}
}

func (e logsvEngine) PriceChain(p logsv.Params, ch chain.Chain) ([][]float64, error) {
	return e.lp.PriceChain(p, ch)
}

func (e logsvEngine) ImpliedVols(p logsv.Params, ch chain.Chain) ([][]float64, error) {
	return e.lp.ImpliedVols(p, ch)
}

func (e logsvEngine) Calibrate(cal calib.Calibrator, ch chain.Chain, init logsv.Params) (calib.Result, error) {
	return cal.Fit(ch, init)
}
