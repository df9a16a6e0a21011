package affine

import (
	"errors"
	"math"
	"math/cmplx"
)

// trapezoid is the workspace of the implicit trapezoid scheme. The method is
// A-stable, which keeps long-maturity and high-volvol points from forcing
// the explicit stepper into tiny steps.
type trapezoid struct {
	pc             pointCoef
	f0, f1, res    []complex128
	jac, m         [][]complex128
	ybig, yh, ynew []complex128
}

func newTrapezoid(pc pointCoef, n int) *trapezoid {
	tr := &trapezoid{
		pc:   pc,
		f0:   make([]complex128, n),
		f1:   make([]complex128, n),
		res:  make([]complex128, n),
		ybig: make([]complex128, n),
		yh:   make([]complex128, n),
		ynew: make([]complex128, n),
		jac:  make([][]complex128, n),
		m:    make([][]complex128, n),
	}
	for i := 0; i < n; i++ {
		tr.jac[i] = make([]complex128, n)
		tr.m[i] = make([]complex128, n)
	}
	return tr
}

// step solves y_{n+1} = y_n + h/2 (f(y_n) + f(y_{n+1})) by Newton iteration
// and writes the result to out. out and y may not alias.
func (tr *trapezoid) step(out, y []complex128, h, rtol, atol float64) error {
	n := len(y)
	ch := complex(0.5*h, 0)
	tr.pc.rhs(tr.f0, y)
	for i := 0; i < n; i++ {
		out[i] = y[i] + 2*ch*tr.f0[i]
	}
	for iter := 0; iter < 12; iter++ {
		tr.pc.rhs(tr.f1, out)
		for i := 0; i < n; i++ {
			tr.res[i] = out[i] - y[i] - ch*(tr.f0[i]+tr.f1[i])
		}
		tr.pc.jacobian(tr.jac, out)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				tr.m[i][j] = -ch * tr.jac[i][j]
			}
			tr.m[i][i] += 1
		}
		if err := solveLinear(tr.m, tr.res); err != nil {
			return err
		}
		done := true
		for i := 0; i < n; i++ {
			out[i] -= tr.res[i]
			tol := 0.01 * (atol + rtol*cmplx.Abs(out[i]))
			if cmplx.Abs(tr.res[i]) > tol {
				done = false
			}
		}
		if done {
			return nil
		}
	}
	return errNewtonStall
}

var errNewtonStall = errors.New("trapezoid: newton iteration stalled")

// solveTrapezoid advances a over [0, dt] with step-doubling error control.
// The doubled half-steps are kept and Richardson-extrapolated.
func solveTrapezoid(a []complex128, pc pointCoef, dt, rtol, atol float64) error {
	n := len(a)
	tr := newTrapezoid(pc, n)

	t := 0.0
	h := dt / 8.0
	const maxSteps = 1 << 20
	for step := 0; t < dt; step++ {
		if step >= maxSteps {
			return errors.New("trapezoid: step limit exceeded")
		}
		if h > dt-t {
			h = dt - t
		}
		errBig := tr.step(tr.ybig, a, h, rtol, atol)
		errHalf := tr.step(tr.yh, a, 0.5*h, rtol, atol)
		if errHalf == nil {
			errHalf = tr.step(tr.ynew, tr.yh, 0.5*h, rtol, atol)
		}
		if errBig != nil || errHalf != nil {
			if !errors.Is(errBig, errNewtonStall) && !errors.Is(errHalf, errNewtonStall) {
				if errBig != nil {
					return errBig
				}
				return errHalf
			}
			h *= 0.5
			if h < 1e-14*dt {
				return errors.New("trapezoid: step size underflow")
			}
			continue
		}

		errNorm := 0.0
		for i := 0; i < n; i++ {
			scale := atol + rtol*math.Max(cmplx.Abs(a[i]), cmplx.Abs(tr.ynew[i]))
			r := cmplx.Abs(tr.ynew[i]-tr.ybig[i]) / (3.0 * scale)
			errNorm += r * r
		}
		errNorm = math.Sqrt(errNorm / float64(n))

		if errNorm <= 1.0 {
			for i := 0; i < n; i++ {
				a[i] = tr.ynew[i] + (tr.ynew[i]-tr.ybig[i])/3
			}
			t += h
		}
		fac := 4.0
		if errNorm > 0.0 {
			fac = 0.9 * math.Pow(errNorm, -1.0/3.0)
			if fac < 0.2 {
				fac = 0.2
			} else if fac > 4.0 {
				fac = 4.0
			}
		}
		h *= fac
		if h < 1e-14*dt {
			return errors.New("trapezoid: step size underflow")
		}
	}
	return nil
}
