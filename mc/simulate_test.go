package mc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/banachtech/stochvol/logsv"
	"github.com/banachtech/stochvol/util"
)

func mildParams() logsv.Params {
	return logsv.NewParams(0.5, 0.5, 2.0, 2.5, -0.2, 0.8)
}

func smallSimulator(p logsv.Params, paths int) Simulator {
	s := NewSimulator(p)
	s.Paths = paths
	return s
}

func TestTerminalVolStaysPositive(t *testing.T) {
	s := smallSimulator(mildParams(), 2000)
	st, err := s.Terminal(util.NewRand(11), 0.5)
	require.NoError(t, err)
	require.Equal(t, 2000, st.Paths())
	for j, sig := range st.Sigma {
		require.Greater(t, sig, 0.0, "path %d", j)
		require.False(t, math.IsNaN(st.X[j]), "path %d", j)
		require.GreaterOrEqual(t, st.I[j], 0.0, "path %d", j)
	}
}

// With sigma0 = theta and no vol noise the vol never moves, X is an exact
// Gaussian random walk and the quadratic variation accumulates exactly
// sigma^2 per unit time.
func TestConstantVolExactQvar(t *testing.T) {
	p := logsv.NewParams(0.5, 0.5, 2.0, 2.5, 0.0, 0.0)
	s := smallSimulator(p, 500)
	st, err := s.Terminal(util.NewRand(3), 0.75)
	require.NoError(t, err)
	for j := range st.Sigma {
		require.InDelta(t, 0.5, st.Sigma[j], 1e-12)
		require.InDelta(t, 0.25*0.75, st.I[j], 1e-10)
	}
}

// The log-Euler step makes exp(alpha*X) a martingale per step conditional on
// the vol, so the sample mean deviates from one by Monte-Carlo noise alone.
func TestTerminalMartingale(t *testing.T) {
	cases := map[string]struct {
		measure logsv.Measure
		sign    float64
	}{
		"spot":    {logsv.Spot, 1.0},
		"inverse": {logsv.Inverse, -1.0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := smallSimulator(mildParams(), 20000)
			s.Measure = tc.measure
			st, err := s.Terminal(util.NewRand(7), 0.5)
			require.NoError(t, err)
			mean := 0.0
			for _, x := range st.X {
				mean += math.Exp(tc.sign * x)
			}
			mean /= float64(st.Paths())
			require.InDelta(t, 1.0, mean, 0.02)
		})
	}
}

func TestQvarMatchesMomentSystem(t *testing.T) {
	p := mildParams()
	s := smallSimulator(p, 20000)
	st, err := s.Terminal(util.NewRand(21), 0.5)
	require.NoError(t, err)

	qvar := make([]float64, st.Paths())
	for j, i := range st.I {
		qvar[j] = i / 0.5
	}
	want, err := logsv.AnalyticQvar(p, 0.5)
	require.NoError(t, err)
	require.InEpsilon(t, want, stat.Mean(qvar, nil), 0.025)
}

func TestChainMatchesManualSlices(t *testing.T) {
	p := mildParams()
	s := smallSimulator(p, 300)
	ttms := []float64{0.25, 0.75}

	steps, err := s.ChainSteps(ttms)
	require.NoError(t, err)
	frozen := util.FrozenChain(util.NewRand(5), steps, s.Paths)

	got, err := s.ChainFrozen(frozen, ttms)
	require.NoError(t, err)
	require.Len(t, got, 2)

	st := NewState(p, s.Paths)
	require.NoError(t, s.Slice(st, 0.25, p.BackboneEta(0.25), frozen[0]))
	require.Equal(t, st, got[0])
	require.NoError(t, s.Slice(st, 0.5, p.BackboneEta(0.75), frozen[1]))
	require.Equal(t, st, got[1])
}

func TestChainFrozenIsDeterministic(t *testing.T) {
	s := smallSimulator(mildParams(), 400)
	ttms := []float64{0.1, 0.3, 0.7}
	steps, err := s.ChainSteps(ttms)
	require.NoError(t, err)
	frozen := util.FrozenChain(util.NewRand(17), steps, s.Paths)

	a, err := s.ChainFrozen(frozen, ttms)
	require.NoError(t, err)
	b, err := s.ChainFrozen(frozen, ttms)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

// Under the spot measure the backbone never enters the vol dynamics, so on
// shared increments a flat backbone scales the quadratic variation by exactly
// eta^2 path by path.
func TestFlatBackboneScalesQvar(t *testing.T) {
	p := mildParams()
	bb, err := p.WithBackbone([]float64{10.0}, []float64{1.25})
	require.NoError(t, err)

	ttms := []float64{0.5}
	s := smallSimulator(p, 500)
	steps, err := s.ChainSteps(ttms)
	require.NoError(t, err)
	frozen := util.FrozenChain(util.NewRand(9), steps, s.Paths)

	base, err := s.ChainFrozen(frozen, ttms)
	require.NoError(t, err)
	s.Params = bb
	scaled, err := s.ChainFrozen(frozen, ttms)
	require.NoError(t, err)

	for j := range base[0].I {
		require.InEpsilon(t, 1.25*1.25*base[0].I[j], scaled[0].I[j], 1e-12, "path %d", j)
		require.InDelta(t, base[0].Sigma[j], scaled[0].Sigma[j], 0.0, "path %d", j)
	}
}

func TestVolPathsShape(t *testing.T) {
	p := mildParams()
	s := smallSimulator(p, 50)
	times, sigma, err := s.VolPaths(util.NewRand(13), 0.25)
	require.NoError(t, err)

	require.Len(t, times, len(sigma))
	require.InDelta(t, 0.25, times[len(times)-1], 1e-12)
	for j, sig := range sigma[0] {
		require.Equal(t, p.Sigma0, sig, "path %d", j)
	}
	for i, row := range sigma {
		require.Len(t, row, 50)
		for j, sig := range row {
			require.Greater(t, sig, 0.0, "step %d path %d", i, j)
		}
	}
}

func TestSimulatorInputErrors(t *testing.T) {
	p := mildParams()
	s := smallSimulator(p, 100)

	cases := map[string]func() error{
		"no maturities": func() error {
			_, err := s.Chain(util.NewRand(1), nil)
			return err
		},
		"non increasing maturities": func() error {
			_, err := s.Chain(util.NewRand(1), []float64{0.5, 0.5})
			return err
		},
		"negative maturity": func() error {
			_, err := s.Terminal(util.NewRand(1), -0.1)
			return err
		},
		"zero paths": func() error {
			bad := s
			bad.Paths = 0
			_, err := bad.Terminal(util.NewRand(1), 0.5)
			return err
		},
		"increment steps mismatch": func() error {
			st := NewState(p, s.Paths)
			inc := util.DrawIncrements(util.NewRand(1), 3, s.Paths)
			return s.Slice(st, 0.5, 1.0, inc)
		},
		"increment paths mismatch": func() error {
			st := NewState(p, 7)
			grid, err := NewTimeGrid(0.5, s.StepsPerYear)
			require.NoError(t, err)
			inc := util.DrawIncrements(util.NewRand(1), grid.Steps, s.Paths)
			return s.Slice(st, 0.5, 1.0, inc)
		},
		"frozen sets mismatch": func() error {
			_, err := s.ChainFrozen(nil, []float64{0.5})
			return err
		},
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, call())
		})
	}
}

func TestTimeGrid(t *testing.T) {
	g, err := NewTimeGrid(0.5, 360)
	require.NoError(t, err)
	require.Equal(t, 180, g.Steps)
	require.InDelta(t, 0.5/180.0, g.Dt, 1e-15)

	times := g.Times()
	require.Len(t, times, 181)
	require.Equal(t, 0.0, times[0])
	require.InDelta(t, 0.5, times[180], 1e-12)

	short, err := NewTimeGrid(1e-4, 360)
	require.NoError(t, err)
	require.Equal(t, 1, short.Steps)

	_, err = NewTimeGrid(0.0, 360)
	require.Error(t, err)
	_, err = NewTimeGrid(0.5, 0)
	require.Error(t, err)
}
