package mc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/util"
)

func roughParams(h float64) logsv.Params {
	p := logsv.NewParams(0.5, 0.5, 2.0, 2.5, -0.2, 0.8)
	p.H = h
	return p
}

func smallRough(h float64, paths int) RoughSimulator {
	s := NewRoughSimulator(roughParams(h))
	s.Paths = paths
	return s
}

func TestApproxKernelAccuracy(t *testing.T) {
	const (
		dt      = 1.0 / 360.0
		horizon = 0.5
		tol     = 1e-2
	)
	for _, h := range []float64{0.1, 0.3, 0.45} {
		a := h - 0.5
		k, err := ApproxKernel(a, tol, dt, horizon)
		require.NoError(t, err, "h=%v", h)
		require.LessOrEqual(t, k.Err, tol, "h=%v", h)
		for _, tt := range []float64{dt, 0.01, 0.1, horizon} {
			exact := math.Pow(tt, a)
			require.InEpsilon(t, exact, k.Eval(tt), 2.0*tol, "h=%v t=%v", h, tt)
		}
	}
}

func TestApproxKernelInputErrors(t *testing.T) {
	cases := map[string]struct {
		a, dt, horizon float64
	}{
		"exponent at zero":     {0.0, 1.0 / 360.0, 0.5},
		"exponent below range": {-0.6, 1.0 / 360.0, 0.5},
		"zero step":            {-0.25, 0.0, 0.5},
		"horizon before step":  {-0.25, 0.1, 0.05},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ApproxKernel(tc.a, 1e-2, tc.dt, tc.horizon)
			require.Error(t, err)
		})
	}
}

func TestRoughRestrictions(t *testing.T) {
	cases := map[string]struct {
		mutate func(*RoughSimulator)
		want   error
	}{
		"inverse measure": {
			mutate: func(s *RoughSimulator) { s.Measure = logsv.Inverse },
			want:   ErrRoughMeasure,
		},
		"standard hurst": {
			mutate: func(s *RoughSimulator) { s.Params.H = 0.5 },
			want:   ErrRoughHurst,
		},
		"non unit backbone": {
			mutate: func(s *RoughSimulator) {
				p, err := s.Params.WithBackbone([]float64{1.0}, []float64{1.2})
				require.NoError(t, err)
				s.Params = p
			},
			want: ErrRoughBackbone,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := smallRough(0.3, 100)
			tc.mutate(&s)
			_, err := s.Terminal(util.NewRand(1), 0.25)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRoughUnitBackboneAccepted(t *testing.T) {
	s := smallRough(0.3, 50)
	p, err := s.Params.WithBackbone([]float64{1.0}, []float64{1.0})
	require.NoError(t, err)
	s.Params = p
	_, err = s.Terminal(util.NewRand(1), 0.1)
	require.NoError(t, err)
}

func TestRoughVolNonNegative(t *testing.T) {
	for _, h := range []float64{0.1, 0.3} {
		s := smallRough(h, 2000)
		st, err := s.Terminal(util.NewRand(19), 0.25)
		require.NoError(t, err)
		for j := range st.Sigma {
			require.GreaterOrEqual(t, st.Sigma[j], 0.0, "h=%v path %d", h, j)
			require.GreaterOrEqual(t, st.I[j], 0.0, "h=%v path %d", h, j)
			require.False(t, math.IsNaN(st.X[j]), "h=%v path %d", h, j)
		}
	}
}

// The log-return increment is driven by a Brownian motion independent of the
// vol noise, so exp(X) stays a martingale step by step and its sample mean
// deviates from one by Monte-Carlo noise alone.
func TestRoughMartingale(t *testing.T) {
	s := smallRough(0.3, 8000)
	st, err := s.Terminal(util.NewRand(29), 0.25)
	require.NoError(t, err)
	mean := 0.0
	for _, x := range st.X {
		mean += math.Exp(x)
	}
	mean /= float64(st.Paths())
	require.InDelta(t, 1.0, mean, 0.02)
}

func TestRoughFrozenDeterminism(t *testing.T) {
	s := smallRough(0.25, 300)
	steps, err := s.PoolSteps([]float64{0.5})
	require.NoError(t, err)
	pool := DrawRoughIncrements(util.NewRand(31), steps, s.Paths)

	a, err := s.TerminalFrozen(pool, 0.5)
	require.NoError(t, err)
	b, err := s.TerminalFrozen(pool, 0.5)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

// A maturity consumes only the pool's leading steps, so valuing it on the
// full pool and on a truncated copy must agree exactly.
func TestRoughPoolPrefixConsistency(t *testing.T) {
	s := smallRough(0.25, 200)
	ttms := []float64{0.25, 0.5}
	steps, err := s.PoolSteps(ttms)
	require.NoError(t, err)
	pool := DrawRoughIncrements(util.NewRand(37), steps, s.Paths)

	out, err := s.ChainFrozen(pool, ttms)
	require.NoError(t, err)
	require.Len(t, out, 2)

	shortGrid, err := NewTimeGrid(0.25, s.StepsPerYear)
	require.NoError(t, err)
	truncated := RoughIncrements{
		W0:     pool.W0[:shortGrid.Steps],
		ZLift:  pool.ZLift[:shortGrid.Steps],
		ZLocal: pool.ZLocal[:shortGrid.Steps],
	}
	first, err := s.TerminalFrozen(truncated, 0.25)
	require.NoError(t, err)
	require.Equal(t, first, out[0])

	last, err := s.TerminalFrozen(pool, 0.5)
	require.NoError(t, err)
	require.Equal(t, last, out[1])
}

func TestRoughPoolTooShort(t *testing.T) {
	s := smallRough(0.25, 100)
	pool := DrawRoughIncrements(util.NewRand(1), 10, s.Paths)
	_, err := s.TerminalFrozen(pool, 0.5)
	require.Error(t, err)
}

func TestRoughVolPathsShape(t *testing.T) {
	s := smallRough(0.3, 40)
	times, sigma, err := s.VolPaths(util.NewRand(41), 0.2)
	require.NoError(t, err)
	require.Len(t, times, len(sigma))
	require.InDelta(t, 0.2, times[len(times)-1], 1e-12)
	for j, sig := range sigma[0] {
		require.Equal(t, s.Params.Sigma0, sig, "path %d", j)
	}
	for i, row := range sigma {
		require.Len(t, row, 40)
		for j, sig := range row {
			require.GreaterOrEqual(t, sig, 0.0, "step %d path %d", i, j)
		}
	}
}
