package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/integrators"
	"github.com/san-kum/flowline/internal/particle"
)

func uniform(dynamo.Vec3, float64) (dynamo.Vec3, error) {
	return dynamo.Vec3{1, 0, 0}, nil
}

func rotation(p dynamo.Vec3, _ float64) (dynamo.Vec3, error) {
	return dynamo.Vec3{-p[1], p[0], 0}, nil
}

// recorder keeps the input of the last call to the wrapped scheme.
type recorder struct {
	integrators.Scheme
	state integrators.State
	h     float64
}

func (r *recorder) Step(f integrators.Func, s integrators.State, h float64) (integrators.Result, error) {
	r.state, r.h = s, h
	return r.Scheme.Step(f, s, h)
}

// dopriPair takes one Dormand-Prince step from x and returns the fifth and
// fourth order solutions.
func dopriPair(f integrators.Func, x dynamo.Vec3, t, h float64) (y5, y4 dynamo.Vec3) {
	a := [][]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	c := []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	b5 := []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0}
	b4 := []float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40}

	k := make([]dynamo.Vec3, 7)
	for i := range k {
		xi := x
		for j, aij := range a[i] {
			xi = xi.AddScaled(h*aij, k[j])
		}
		k[i], _ = f(xi, t+c[i]*h)
	}
	y5, y4 = x, x
	for i := range k {
		y5 = y5.AddScaled(h*b5[i], k[i])
		y4 = y4.AddScaled(h*b4[i], k[i])
	}
	return y5, y4
}

func TestFixedStepEuler(t *testing.T) {
	c := New(integrators.NewEuler(), Settings{MaxStep: 0.1}, nil)
	p := particle.New(1, 0, dynamo.Vec3{}, 0, dynamo.Forward, 0.1)

	for i := 0; i < 10; i++ {
		rep := c.Advance(p, uniform)
		require.Equal(t, Stepped, rep.Outcome)
	}
	assert.InDelta(t, 1.0, p.Position[0], 1e-12)
	assert.InDelta(t, 1.0, p.Time, 1e-12)
	assert.InDelta(t, 1.0, p.ArcLength, 1e-12)
	assert.Equal(t, 10, p.Steps)
}

func TestBackwardDirection(t *testing.T) {
	c := New(integrators.NewRK4(), Settings{MaxStep: 0.25}, nil)
	p := particle.New(1, 0, dynamo.Vec3{}, 5, dynamo.Backward, 0.25)

	for i := 0; i < 4; i++ {
		require.Equal(t, Stepped, c.Advance(p, uniform).Outcome)
	}
	assert.InDelta(t, -1.0, p.Position[0], 1e-12)
	assert.InDelta(t, 4.0, p.Time, 1e-12)
	assert.InDelta(t, 1.0, p.ArcLength, 1e-12)
}

func TestMaxTimeClamp(t *testing.T) {
	c := New(integrators.NewRK4(), Settings{MaxStep: 0.3, MaxTime: 1.0}, nil)
	p := particle.New(1, 0, dynamo.Vec3{}, 0, dynamo.Forward, 0.3)

	for i := 0; i < 4; i++ {
		require.Equal(t, Stepped, c.Advance(p, uniform).Outcome)
	}
	assert.Equal(t, 1.0, p.Time)
	assert.InDelta(t, 1.0, p.Position[0], 1e-12)
}

func TestAdaptiveErrorBound(t *testing.T) {
	rec := &recorder{Scheme: integrators.NewDormandPrince()}
	set := Settings{AbsTol: 1e-7, RelTol: 1e-6, MinStep: 1e-8, MaxStep: 0.5, LimitMaxStep: true}
	c := New(rec, set, nil)
	p := particle.New(1, 0, dynamo.Vec3{1, 0, 0}, 0, dynamo.Forward, 0.01)

	for i := 0; i < 200; i++ {
		rep := c.Advance(p, rotation)
		require.Equal(t, Stepped, rep.Outcome, "step %d: %v", i, rep.Err)

		y5, y4 := dopriPair(rotation, rec.state.Pos, rec.state.Time, rec.h)
		assert.InDelta(t, 0, y5.Sub(p.Position).Norm(), 1e-12, "step %d lands on the fifth order solution", i)
		ratio := Tolerance(y5.Sub(y4), y5, set.AbsTol, set.RelTol)
		assert.LessOrEqual(t, ratio, 1+1e-6, "accepted step %d exceeds tolerance", i)
		assert.LessOrEqual(t, math.Abs(p.StepLength), set.MaxStep)
	}

	r := p.Position.Norm()
	assert.InDelta(t, 1.0, r, 1e-3, "radius drift")
	assert.InDelta(t, math.Cos(p.Time), p.Position[0], 1e-3)
}

func TestProgressIsMonotone(t *testing.T) {
	for _, name := range integrators.Names() {
		for _, dir := range []dynamo.Direction{dynamo.Forward, dynamo.Backward} {
			t.Run(name+"/"+dir.String(), func(t *testing.T) {
				scheme, err := integrators.Lookup(name)
				require.NoError(t, err)
				set := Settings{AbsTol: 1e-7, RelTol: 1e-6, MinStep: 1e-8, MaxStep: 0.1}
				c := New(scheme, set, nil)
				p := particle.New(1, 0, dynamo.Vec3{1, 0, 0}, 2, dir, 0.1)

				prevArc, prevElapsed := 0.0, 0.0
				for i := 0; i < 100; i++ {
					rep := c.Advance(p, rotation)
					require.Equal(t, Stepped, rep.Outcome, "step %d: %v", i, rep.Err)
					assert.GreaterOrEqual(t, p.ArcLength, prevArc, "step %d", i)
					assert.Greater(t, p.Elapsed(), prevElapsed, "step %d", i)
					assert.Equal(t, dir.Sign(), math.Copysign(1, p.Time-p.StartTime), "step %d", i)
					prevArc, prevElapsed = p.ArcLength, p.Elapsed()
				}
				if scheme.Order() >= 4 {
					assert.InDelta(t, 1.0, p.Position.Norm(), 1e-2)
				}
			})
		}
	}
}

func TestLimitMaxStep(t *testing.T) {
	tests := []struct {
		limit bool
		want  float64
	}{
		{false, 1.0},
		{true, 0.2},
	}
	for _, tt := range tests {
		set := Settings{AbsTol: 1e-6, RelTol: 1e-6, MinStep: 1e-6, MaxStep: 0.2, LimitMaxStep: tt.limit}
		c := New(integrators.NewDormandPrince(), set, nil)
		p := particle.New(1, 0, dynamo.Vec3{}, 0, dynamo.Forward, 0.1)

		require.Equal(t, Stepped, c.Advance(p, uniform).Outcome)
		assert.InDelta(t, tt.want, p.StepLength, 1e-12, "limit=%v", tt.limit)
	}
}

func TestStepTooSmall(t *testing.T) {
	set := Settings{AbsTol: 1e-300, RelTol: 1e-300, MinStep: 0.01, MaxStep: 0.1}
	c := New(integrators.NewDormandPrince(), set, nil)
	p := particle.New(1, 0, dynamo.Vec3{1, 0, 0}, 0, dynamo.Forward, 0.1)

	rep := c.Advance(p, rotation)
	require.Equal(t, Failed, rep.Outcome)
	assert.ErrorIs(t, rep.Err, dynamo.ErrStepTooSmall)
	assert.Greater(t, rep.Rejected, 0)
	assert.Equal(t, 0, p.Steps, "failed step must not move the particle")
}

func TestStiffBestEffort(t *testing.T) {
	stiff := func(p dynamo.Vec3, _ float64) (dynamo.Vec3, error) {
		return dynamo.Vec3{-1e9 * p[0], 1, 0}, nil
	}
	ws := dynamo.NewWarnings()
	set := Settings{AbsTol: 1e-6, RelTol: 1e-6, MinStep: 1e-3, MaxStep: 1e-3}
	c := New(integrators.NewDormandPrince(), set, ws)
	p := particle.New(7, 0, dynamo.Vec3{1, 0, 0}, 0, dynamo.Forward, 1e-3)

	rep := c.Advance(p, stiff)
	require.Equal(t, Stepped, rep.Outcome, "%v", rep.Err)
	assert.Equal(t, 1, ws.Count(dynamo.WarnStiffness))
	assert.NotZero(t, p.Flags&particle.FlagStiff)
}

// bounded is the uniform field restricted to x <= 1.
func bounded(p dynamo.Vec3, _ float64) (dynamo.Vec3, error) {
	if p[0] > 1 {
		return dynamo.Vec3{}, dynamo.ErrNotResident
	}
	return dynamo.Vec3{1, 0, 0}, nil
}

func TestClipAtBoundary(t *testing.T) {
	c := New(integrators.NewRK4(), Settings{MinStep: 1e-3, MaxStep: 0.1}, nil)
	p := particle.New(1, 0, dynamo.Vec3{0.95, 0, 0}, 0, dynamo.Forward, 0.1)

	rep := c.Advance(p, bounded)
	require.Equal(t, Stepped, rep.Outcome)
	assert.Equal(t, 1, rep.Bisections)
	assert.LessOrEqual(t, p.Position[0], 1.0+1e-12)
	assert.InDelta(t, 1.0, p.Position[0], 1e-4)
	assert.InDelta(t, p.Position[0]-0.95, p.Time, 1e-12)

	edge := particle.New(2, 0, dynamo.Vec3{1, 0, 0}, 0, dynamo.Forward, 0.1)
	rep = c.Advance(edge, bounded)
	require.Equal(t, AwaitingDomain, rep.Outcome)
	assert.Greater(t, rep.Probe[0], 1.0)
	assert.Less(t, rep.Probe[0], 1.0+1e-4)
	assert.InDelta(t, rep.Probe[0]-1, rep.ProbeStep, 1e-12)
	assert.True(t, edge.IsActive())
	assert.Equal(t, 0, edge.Steps)
}

func TestFaceReachedInFewSteps(t *testing.T) {
	for _, name := range []string{"euler", "rk4", "dopri5", "adams-bashforth"} {
		t.Run(name, func(t *testing.T) {
			scheme, err := integrators.Lookup(name)
			require.NoError(t, err)
			c := New(scheme, Settings{AbsTol: 1e-7, RelTol: 1e-6, MaxStep: 0.1}, nil)
			p := particle.New(1, 0, dynamo.Vec3{0.05, 0, 0}, 0, dynamo.Forward, 0.1)

			var rep Report
			for i := 0; i < 20; i++ {
				if rep = c.Advance(p, bounded); rep.Outcome != Stepped {
					break
				}
			}
			require.Equal(t, AwaitingDomain, rep.Outcome)
			assert.LessOrEqual(t, p.Steps, 12)

			require.NoError(t, c.Cross(p, uniform, rep))
			assert.Greater(t, p.Position[0], 1.0)
			assert.InDelta(t, p.Position[0]-0.05, p.Time, 1e-9)
			assert.InDelta(t, p.Position[0]-0.05, p.ArcLength, 1e-9)
			assert.Equal(t, 1, p.Crossings)
			assert.Empty(t, p.History)
		})
	}
}

func TestCrossWithoutProgress(t *testing.T) {
	c := New(integrators.NewRK4(), Settings{MaxStep: 0.1}, nil)
	p := particle.New(1, 0, dynamo.Vec3{1, 0, 0}, 0, dynamo.Forward, 0.1)
	rep := Report{Outcome: AwaitingDomain, Probe: dynamo.Vec3{1, 0, 0}}

	for i := 0; i < maxCrossings; i++ {
		require.NoError(t, c.Cross(p, uniform, rep))
	}
	assert.ErrorIs(t, c.Cross(p, uniform, rep), dynamo.ErrNoProgress)

	require.Equal(t, Stepped, c.Advance(p, uniform).Outcome)
	assert.Zero(t, p.Crossings)
}

func TestCirclingWarning(t *testing.T) {
	ws := dynamo.NewWarnings()
	h := 2 * math.Pi / 50
	c := New(integrators.NewRK4(), Settings{MaxStep: h, SpeedCutoff: 1e-9, CriticalPointWindow: 50}, ws)
	p := particle.New(3, 0, dynamo.Vec3{1, 0, 0}, 0, dynamo.Forward, h)

	for i := 0; i < 150; i++ {
		require.Equal(t, Stepped, c.Advance(p, rotation).Outcome)
	}
	assert.Equal(t, 1, ws.Count(dynamo.WarnCriticalPoint), "one warning per particle")
	assert.True(t, p.IsActive(), "circling is not terminal")

	q := particle.New(4, 0, dynamo.Vec3{}, 0, dynamo.Forward, h)
	for i := 0; i < 150; i++ {
		c.Advance(q, uniform)
	}
	assert.Equal(t, 1, ws.Count(dynamo.WarnCriticalPoint))
}

func TestAdvanceTerminated(t *testing.T) {
	c := New(integrators.NewEuler(), Settings{MaxStep: 0.1}, nil)
	p := particle.New(1, 0, dynamo.Vec3{}, 0, dynamo.Forward, 0.1)
	p.Terminate(particle.MaxSteps)

	rep := c.Advance(p, uniform)
	assert.Equal(t, Failed, rep.Outcome)
	assert.Equal(t, 0, p.Steps)
}

func TestGrowShrinkBounds(t *testing.T) {
	assert.Equal(t, 10.0, Grow(0))
	assert.Equal(t, 10.0, Grow(1e-12))
	assert.InDelta(t, 0.9, Grow(1), 1e-15)
	assert.Equal(t, 0.2, Shrink(1e6))
	assert.InDelta(t, 0.9*math.Pow(2, -0.25), Shrink(2), 1e-15)
}
