// Package mainfuncs carries the entry points behind the stochvol CLI
// commands.
package mainfuncs

import (
	"fmt"
	"math"

	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/pricer"
)

// Demo prices a chain with the reference parameters and prints model
// implied vols next to the market quotes.
func Demo(chainFile string) error {
	lp := pricer.New()
	p := logsv.BTCParams
	ch, err := loadChain(chainFile)
	if err != nil {
		return err
	}

	prices, err := lp.PriceChain(p, ch)
	if err != nil {
		return err
	}
	vols, err := lp.ImpliedVols(p, ch)
	if err != nil {
		return err
	}

	fmt.Printf("sigma0 %.4f theta %.4f kappa1 %.4f kappa2 %.4f beta %.4f volvol %.4f\n",
		p.Sigma0, p.Theta, p.Kappa1, p.Kappa2, p.Beta, p.Volvol)
	for i, sl := range ch {
		fmt.Printf("ttm %.4f forward %.2f df %.4f\n", sl.TTM, sl.Forward, sl.DF)
		for j, k := range sl.Strikes {
			market := math.NaN()
			if j < len(sl.Vols) {
				market = sl.Vols[j]
			}
			fmt.Printf("  %s %10.1f  price %10.4f  model %7.4f  market %7.4f\n",
				sl.Types[j], k, prices[i][j], vols[i][j], market)
		}
	}
	return nil
}
