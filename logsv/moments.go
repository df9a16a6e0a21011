package logsv

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
)

// Moments of the shifted volatility y = sigma - theta, m_k(t) = E[y_t^k],
// truncated at order four with the closure m_5 = 0. The truncated system is
// linear, dm/dt = B m + g, so it integrates cheaply on a fixed grid. Used for
// analytic quadratic-variation forwards and the varswap backbone fit.
type VolMoments struct {
	T  []float64
	M1 []float64
	M2 []float64
}

const momentTerms = 4

// momentSystem assembles B and g of the truncated moment ODE.
func momentSystem(p Params) (*mat.Dense, *mat.VecDense) {
	vt2 := p.Vartheta2()
	th := p.Theta
	k := p.Kappa()
	k2 := p.Kappa2

	b := mat.NewDense(momentTerms, momentTerms, []float64{
		-k, -k2, 0.0, 0.0,
		2.0 * vt2 * th, vt2 - 2.0*k, -2.0 * k2, 0.0,
		3.0 * vt2 * th * th, 6.0 * vt2 * th, 3.0*vt2 - 3.0*k, -3.0 * k2,
		0.0, 6.0 * vt2 * th * th, 12.0 * vt2 * th, 6.0*vt2 - 4.0*k,
	})
	g := mat.NewVecDense(momentTerms, []float64{0.0, vt2 * th * th, 0.0, 0.0})
	return b, g
}

// SolveVolMoments integrates the moment system on [0, ttm] with a classical
// Runge-Kutta step and returns the grid with the first two moment paths.
func SolveVolMoments(p Params, ttm float64) VolMoments {
	n := int(math.Ceil(256.0 * ttm))
	if n < 64 {
		n = 64
	}
	dt := ttm / float64(n)

	b, g := momentSystem(p)
	rhs := func(dst, m *mat.VecDense) {
		dst.MulVec(b, m)
		dst.AddVec(dst, g)
	}

	y0 := p.Sigma0 - p.Theta
	m := mat.NewVecDense(momentTerms, []float64{y0, y0 * y0, y0 * y0 * y0, y0 * y0 * y0 * y0})

	out := VolMoments{
		T:  make([]float64, n+1),
		M1: make([]float64, n+1),
		M2: make([]float64, n+1),
	}
	out.M1[0], out.M2[0] = m.AtVec(0), m.AtVec(1)

	k1 := mat.NewVecDense(momentTerms, nil)
	k2 := mat.NewVecDense(momentTerms, nil)
	k3 := mat.NewVecDense(momentTerms, nil)
	k4 := mat.NewVecDense(momentTerms, nil)
	tmp := mat.NewVecDense(momentTerms, nil)

	for i := 1; i <= n; i++ {
		rhs(k1, m)
		tmp.AddScaledVec(m, 0.5*dt, k1)
		rhs(k2, tmp)
		tmp.AddScaledVec(m, 0.5*dt, k2)
		rhs(k3, tmp)
		tmp.AddScaledVec(m, dt, k3)
		rhs(k4, tmp)

		m.AddScaledVec(m, dt/6.0, k1)
		m.AddScaledVec(m, dt/3.0, k2)
		m.AddScaledVec(m, dt/3.0, k3)
		m.AddScaledVec(m, dt/6.0, k4)

		out.T[i] = float64(i) * dt
		out.M1[i], out.M2[i] = m.AtVec(0), m.AtVec(1)
	}
	return out
}

// ExpectedVar is E[sigma_t^2] = theta^2 + 2 theta m1(t) + m2(t).
func ExpectedVar(p Params, ttm float64) float64 {
	vm := SolveVolMoments(p, ttm)
	n := len(vm.T) - 1
	return p.Theta2() + 2.0*p.Theta*vm.M1[n] + vm.M2[n]
}

// AnalyticQvar is the model quadratic-variation forward
// (1/T) Int_0^T eta(u)^2 E[sigma_u^2] du, the fair strike of a variance swap.
func AnalyticQvar(p Params, ttm float64) (float64, error) {
	if !(ttm > 0.0) {
		return 0.0, fmt.Errorf("ttm must be positive, got %v", ttm)
	}
	vm := SolveVolMoments(p, ttm)
	f := make([]float64, len(vm.T))
	for i, t := range vm.T {
		eta := p.BackboneEta(t)
		ev := p.Theta2() + 2.0*p.Theta*vm.M1[i] + vm.M2[i]
		f[i] = eta * eta * ev
	}
	return integrate.Trapezoidal(vm.T, f) / ttm, nil
}

// FitBackboneToVarswaps picks piecewise-constant backbone etas so the model
// reproduces the market variance-swap strikes (vol units) at each pillar:
// eta_i^2 matches the incremental market total variance of bucket i against
// the model integral of E[sigma^2] over that bucket. Returns new parameters,
// the input set is unchanged.
func FitBackboneToVarswaps(p Params, ttms, varswapVols []float64) (Params, error) {
	if len(ttms) == 0 || len(ttms) != len(varswapVols) {
		return p, errors.New("varswap pillars and vols must be non-empty and aligned")
	}
	horizon := ttms[len(ttms)-1]
	vm := SolveVolMoments(p, horizon)

	// running Int_0^t E[sigma^2] du on the moment grid
	cum := make([]float64, len(vm.T))
	prev := p.Theta2() + 2.0*p.Theta*vm.M1[0] + vm.M2[0]
	for i := 1; i < len(vm.T); i++ {
		cur := p.Theta2() + 2.0*p.Theta*vm.M1[i] + vm.M2[i]
		cum[i] = cum[i-1] + 0.5*(prev+cur)*(vm.T[i]-vm.T[i-1])
		prev = cur
	}
	intVar := func(t float64) float64 {
		if t <= 0.0 {
			return 0.0
		}
		dt := vm.T[1] - vm.T[0]
		j := int(t / dt)
		if j >= len(cum)-1 {
			return cum[len(cum)-1]
		}
		w := (t - vm.T[j]) / dt
		return (1.0-w)*cum[j] + w*cum[j+1]
	}

	etas := make([]float64, len(ttms))
	prevT, prevTV := 0.0, 0.0
	for i, t := range ttms {
		if t <= prevT {
			return p, errors.New("varswap pillars must be strictly increasing")
		}
		tv := varswapVols[i] * varswapVols[i] * t
		if tv <= prevTV {
			return p, fmt.Errorf("market total variance must increase, pillar %d", i)
		}
		den := intVar(t) - intVar(prevT)
		if den <= 0.0 {
			return p, fmt.Errorf("degenerate model variance in bucket %d", i)
		}
		etas[i] = math.Sqrt((tv - prevTV) / den)
		prevT, prevTV = t, tv
	}
	return p.WithBackbone(ttms, etas)
}
