package affine

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/stochvol/logsv"
)

func testParams() logsv.Params {
	return logsv.NewParams(0.7, 0.8, 2.0, 2.5, -0.3, 0.8)
}

func solvers() map[string]Solver {
	return map[string]Solver{"nonstiff": NonStiff, "stiff": Stiff, "analytic": Analytic}
}

// With sigma0 = theta and no vol noise the volatility never moves, so the
// log-MGF is that of a drifted Brownian motion and is known in closed form.
func TestConstantVolClosedForm(t *testing.T) {
	p := logsv.NewParams(0.8, 0.8, 2.0, 2.5, 0.0, 0.0)

	phi := complex(0.4, 0.9)
	psi := complex(0.3, -0.2)
	b := Batch{Phi: []complex128{phi}, Psi: []complex128{psi}, U: []complex128{0}}
	ttm := 0.7

	for _, m := range []logsv.Measure{logsv.Spot, logsv.Inverse} {
		alpha := complex(m.Alpha(), 0)
		want := (0.5*phi*(phi-alpha) - psi) * complex(p.Theta*p.Theta*ttm, 0)
		for name, s := range solvers() {
			cfg := DefaultConfig()
			cfg.Measure = m
			cfg.Solver = s
			st, err := SolveSlice(p, cfg, b, NewState(b, cfg.Order), ttm, 1.0)
			require.NoError(t, err, name)
			got := st.LogMGF(p)[0]
			require.InDelta(t, 0.0, cmplx.Abs(got-want), 1e-9, "%s measure %v", name, m)
		}
	}
}

// With no vol noise and kappa2 = 0 the volatility path is deterministic with
// exponential mean reversion, and the expansion solves the model exactly:
// Lambda = c eta^2 Int sigma(t)^2 dt.
func TestDeterministicVolClosedForm(t *testing.T) {
	p := logsv.NewParams(0.95, 0.8, 2.0, 0.0, 0.0, 0.0)

	phi := complex(0.5, 1.3)
	b := LogReturnBatch([]complex128{phi})
	ttm, eta := 0.8, 0.9
	y0 := p.Sigma0 - p.Theta
	k := p.Kappa1
	intVar := p.Theta*p.Theta*ttm +
		2.0*p.Theta*y0*(1.0-math.Exp(-k*ttm))/k +
		y0*y0*(1.0-math.Exp(-2.0*k*ttm))/(2.0*k)
	c := 0.5 * phi * (phi + 1)
	want := c * complex(eta*eta*intVar, 0)

	for name, s := range solvers() {
		cfg := DefaultConfig()
		cfg.Solver = s
		st, err := SolveSlice(p, cfg, b, NewState(b, cfg.Order), ttm, eta)
		require.NoError(t, err, name)
		got := st.LogMGF(p)[0]
		require.InDelta(t, 0.0, cmplx.Abs(got-want), 1e-6, name)
	}
}

func TestSolverAgreement(t *testing.T) {
	p := testParams()
	var phis []complex128
	for _, nu := range []float64{0.0, 0.8, 2.5, 6.0} {
		phis = append(phis, complex(0.5, nu))
	}
	b := LogReturnBatch(phis)

	run := func(s Solver, o Order) []complex128 {
		cfg := DefaultConfig()
		cfg.Solver = s
		cfg.Order = o
		st, err := SolveSlice(p, cfg, b, NewState(b, cfg.Order), 0.75, 1.0)
		require.NoError(t, err)
		return st.LogMGF(p)
	}

	ref := run(NonStiff, First)
	stiff := run(Stiff, First)
	analytic := run(Analytic, First)
	for i := range ref {
		require.InDelta(t, 0.0, cmplx.Abs(ref[i]-stiff[i]), 1e-4)
		require.InDelta(t, 0.0, cmplx.Abs(ref[i]-analytic[i]), 1e-3)
	}

	refSecond := run(NonStiff, Second)
	stiffSecond := run(Stiff, Second)
	for i := range refSecond {
		require.InDelta(t, 0.0, cmplx.Abs(refSecond[i]-stiffSecond[i]), 1e-4)
	}
}

// The truncation orders must agree closely when the vol noise is small.
func TestOrdersAgreeForSmallVolvol(t *testing.T) {
	p := logsv.NewParams(0.7, 0.8, 2.0, 2.5, -0.1, 0.2)
	b := LogReturnBatch([]complex128{complex(0.5, 1.0), complex(0.5, 4.0)})

	run := func(o Order) []complex128 {
		cfg := DefaultConfig()
		cfg.Order = o
		st, err := SolveSlice(p, cfg, b, NewState(b, o), 0.5, 1.0)
		require.NoError(t, err)
		return st.LogMGF(p)
	}
	first, second := run(First), run(Second)
	for i := range first {
		require.InDelta(t, 0.0, cmplx.Abs(first[i]-second[i]), 1e-3)
	}
}

// Integrating in two slices with a flat backbone must land on the single
// long-slice solution: only the coefficients carry across the gap.
func TestChainContinuation(t *testing.T) {
	p := testParams()
	b := LogReturnBatch([]complex128{complex(0.5, 0.6), complex(0.5, 3.0)})
	cfg := DefaultConfig()

	chain, err := SolveChain(p, cfg, b, []float64{0.3, 0.6})
	require.NoError(t, err)

	stShort, err := SolveSlice(p, cfg, b, NewState(b, cfg.Order), 0.3, 1.0)
	require.NoError(t, err)
	stLong, err := SolveSlice(p, cfg, b, NewState(b, cfg.Order), 0.6, 1.0)
	require.NoError(t, err)

	short, long := stShort.LogMGF(p), stLong.LogMGF(p)
	for i := range chain[0] {
		require.InDelta(t, 0.0, cmplx.Abs(chain[0][i]-short[i]), 1e-8)
		require.InDelta(t, 0.0, cmplx.Abs(chain[1][i]-long[i]), 1e-5)
	}
}

// The shifted-vol transform loads the initial condition A1(0) = -u, so for a
// vanishing gap the log-MGF approaches -u (sigma0 - theta).
func TestSigmaTransformInit(t *testing.T) {
	p := testParams()
	u := complex(1.2, -0.4)
	b := SigmaBatch([]complex128{u})
	cfg := DefaultConfig()

	st, err := SolveSlice(p, cfg, b, NewState(b, cfg.Order), 1e-7, 1.0)
	require.NoError(t, err)
	want := -u * complex(p.Sigma0-p.Theta, 0)
	require.InDelta(t, 0.0, cmplx.Abs(st.LogMGF(p)[0]-want), 1e-5)
}

// Real parameters force Lambda(conj phi) = conj Lambda(phi).
func TestConjugateSymmetry(t *testing.T) {
	p := testParams()
	cfg := DefaultConfig()

	up := LogReturnBatch([]complex128{complex(0.5, 2.0)})
	dn := LogReturnBatch([]complex128{complex(0.5, -2.0)})
	stUp, err := SolveSlice(p, cfg, up, NewState(up, cfg.Order), 0.5, 1.0)
	require.NoError(t, err)
	stDn, err := SolveSlice(p, cfg, dn, NewState(dn, cfg.Order), 0.5, 1.0)
	require.NoError(t, err)

	lu, ld := stUp.LogMGF(p)[0], stDn.LogMGF(p)[0]
	require.InDelta(t, 0.0, cmplx.Abs(ld-cmplx.Conj(lu)), 1e-10)
}

func TestConfigAndInputErrors(t *testing.T) {
	p := testParams()
	b := LogReturnBatch([]complex128{complex(0.5, 1.0)})
	st := NewState(b, First)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "analytic second order",
			run: func() error {
				cfg := DefaultConfig()
				cfg.Solver = Analytic
				cfg.Order = Second
				_, err := SolveSlice(p, cfg, b, NewState(b, Second), 0.5, 1.0)
				return err
			},
			want: ErrAnalyticSecond,
		},
		{
			name: "unknown order",
			run: func() error {
				cfg := DefaultConfig()
				cfg.Order = Order(9)
				_, err := SolveSlice(p, cfg, b, st, 0.5, 1.0)
				return err
			},
			want: ErrUnsupportedOrder,
		},
		{
			name: "unknown solver",
			run: func() error {
				cfg := DefaultConfig()
				cfg.Solver = Solver(7)
				_, err := SolveSlice(p, cfg, b, st, 0.5, 1.0)
				return err
			},
			want: ErrUnsupportedSolver,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), tc.want)
		})
	}

	t.Run("non positive gap", func(t *testing.T) {
		_, err := SolveSlice(p, DefaultConfig(), b, st, 0.0, 1.0)
		require.Error(t, err)
	})
	t.Run("misaligned batch", func(t *testing.T) {
		bad := Batch{Phi: []complex128{1}, Psi: nil, U: nil}
		_, err := SolveSlice(p, DefaultConfig(), bad, st, 0.5, 1.0)
		require.Error(t, err)
	})
	t.Run("non increasing maturities", func(t *testing.T) {
		_, err := SolveChain(p, DefaultConfig(), b, []float64{0.5, 0.5})
		require.Error(t, err)
	})
}
