package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/banachtech/stochvol/calib"
	"github.com/banachtech/stochvol/mainfuncs"
)

func main() {
	_ = godotenv.Load()

	cmd := "demo"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "demo":
		fs := flag.NewFlagSet("demo", flag.ExitOnError)
		chainFile := fs.String("chain", "", "chain JSON file, bundled BTC chain when empty")
		fs.Parse(os.Args[2:])
		err = mainfuncs.Demo(*chainFile)
	case "bench":
		fs := flag.NewFlagSet("bench", flag.ExitOnError)
		chainFile := fs.String("chain", "", "chain JSON file, bundled BTC chain when empty")
		paths := fs.Int("paths", 50000, "number of simulation paths")
		fs.Parse(os.Args[2:])
		err = mainfuncs.Bench(*chainFile, *paths)
	case "calibrate":
		fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
		chainFile := fs.String("chain", "", "chain JSON file, bundled BTC chain when empty")
		ctName := fs.String("type", "params5", "calibration type: params4, params5 or params_with_varswap_fit")
		conName := fs.String("constraint", "unconstrained", "martingale constraint, e.g. mma_martingale")
		fs.Parse(os.Args[2:])

		var ct calib.CalibrationType
		if err = ct.UnmarshalText([]byte(*ctName)); err != nil {
			break
		}
		var con calib.ConstraintType
		if err = con.UnmarshalText([]byte(*conName)); err != nil {
			break
		}
		err = mainfuncs.Calibrate(*chainFile, ct, con)
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		address := fs.String("address", "0.0.0.0:8080", "listen address")
		fs.Parse(os.Args[2:])
		err = mainfuncs.Serve(*address)
	default:
		fmt.Printf("unknown command %q, want demo, bench, calibrate or serve\n", cmd)
		os.Exit(-1)
	}

	if err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
