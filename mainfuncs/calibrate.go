package mainfuncs

import (
	"fmt"

	"github.com/banachtech/stochvol/calib"
	"github.com/banachtech/stochvol/logsv"
)

// Calibrate refits the model to a chain from a chain-seeded guess and
// prints the fitted parameters with diagnostics.
func Calibrate(chainFile string, ct calib.CalibrationType, constraint calib.ConstraintType) error {
	ch, err := loadChain(chainFile)
	if err != nil {
		return err
	}
	guess, err := calib.InitialGuess(ch, logsv.BTCParams)
	if err != nil {
		return err
	}

	cal := calib.New()
	cal.Type = ct
	cal.Constraint = constraint

	bar := progressBar(-1)
	cal.Progress = func(evals int, loss float64) {
		bar.Describe(fmt.Sprintf("eval %d loss %.6f\t", evals, loss))
		bar.Add(1)
	}

	res, err := cal.Fit(ch, guess)
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("converged %v after %d iterations and %d evals, status %s\n",
		res.Converged, res.Iterations, res.FuncEvals, res.Status)
	fmt.Printf("residual %.6f\n", res.ResidualNorm)
	fmt.Printf("sigma0 %.4f theta %.4f kappa1 %.4f kappa2 %.4f beta %.4f volvol %.4f\n",
		res.Params.Sigma0, res.Params.Theta, res.Params.Kappa1, res.Params.Kappa2, res.Params.Beta, res.Params.Volvol)
	return nil
}
