package affine

import (
	"errors"
	"math"
	"math/cmplx"
)

// Dormand-Prince RK5(4) tableau.
var (
	dpA = [7][6]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0.0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	}
	dpB = [7]float64{35.0 / 384.0, 0.0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0.0}
	dpE = [7]float64{71.0 / 57600.0, 0.0, -71.0 / 16695.0, 71.0 / 1920.0, -17253.0 / 339200.0, 22.0 / 525.0, -1.0 / 40.0}
)

// solveRK45 advances a over [0, dt] with adaptive Dormand-Prince stepping.
// a is updated in place.
func solveRK45(a []complex128, pc pointCoef, dt, rtol, atol float64) error {
	n := len(a)
	var k [7][]complex128
	for i := range k {
		k[i] = make([]complex128, n)
	}
	ytmp := make([]complex128, n)
	ynew := make([]complex128, n)

	t := 0.0
	h := dt / 16.0
	const maxSteps = 1 << 20
	for step := 0; t < dt; step++ {
		if step >= maxSteps {
			return errors.New("rk45: step limit exceeded")
		}
		if h > dt-t {
			h = dt - t
		}
		pc.rhs(k[0], a)
		for s := 1; s < 7; s++ {
			for i := 0; i < n; i++ {
				acc := a[i]
				for j := 0; j < s; j++ {
					if dpA[s][j] != 0.0 {
						acc += complex(h*dpA[s][j], 0) * k[j][i]
					}
				}
				ytmp[i] = acc
			}
			pc.rhs(k[s], ytmp)
		}
		errNorm := 0.0
		for i := 0; i < n; i++ {
			acc := a[i]
			ei := complex(0, 0)
			for s := 0; s < 7; s++ {
				if dpB[s] != 0.0 {
					acc += complex(h*dpB[s], 0) * k[s][i]
				}
				if dpE[s] != 0.0 {
					ei += complex(h*dpE[s], 0) * k[s][i]
				}
			}
			ynew[i] = acc
			scale := atol + rtol*math.Max(cmplx.Abs(a[i]), cmplx.Abs(acc))
			r := cmplx.Abs(ei) / scale
			errNorm += r * r
		}
		errNorm = math.Sqrt(errNorm / float64(n))

		if errNorm <= 1.0 {
			copy(a, ynew)
			t += h
		}
		fac := 5.0
		if errNorm > 0.0 {
			fac = 0.9 * math.Pow(errNorm, -0.2)
			if fac < 0.2 {
				fac = 0.2
			} else if fac > 5.0 {
				fac = 5.0
			}
		}
		h *= fac
		if h < 1e-14*dt {
			return errors.New("rk45: step size underflow")
		}
	}
	return nil
}
