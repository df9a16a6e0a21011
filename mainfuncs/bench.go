package mainfuncs

import (
	"fmt"

	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/pricer"
	"github.com/banachtech/stochvol/util"
)

// Bench prices a chain both ways and prints transform prices next to
// Monte Carlo estimates with their standard errors.
func Bench(chainFile string, paths int) error {
	lp := pricer.New()
	if paths > 0 {
		lp.Config.Paths = paths
	}
	p := logsv.BTCParams
	ch, err := loadChain(chainFile)
	if err != nil {
		return err
	}
	rng := util.NewRand(lp.Config.Seed)

	bar := progressBar(len(ch))
	var rows []pricer.BenchmarkRow
	for _, sl := range ch {
		bar.Describe(fmt.Sprintf("Pricing ttm %.4f\t", sl.TTM))
		out, err := lp.Benchmark(p, chain.Chain{sl}, rng)
		if err != nil {
			return err
		}
		rows = append(rows, out...)
		bar.Add(1)
	}

	fmt.Println("type  strike     ttm  transform        mc    stderr        95% band")
	for _, r := range rows {
		fmt.Printf("%4s %7.1f %7.4f %10.4f %9.4f %9.4f [%8.4f, %8.4f]\n",
			r.Type, r.Strike, r.TTM, r.Transform, r.MC, r.StdErr, r.Low, r.High)
	}
	return nil
}
