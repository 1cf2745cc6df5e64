package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/sim"
)

func TestRegistryFields(t *testing.T) {
	r := NewRegistry()
	for _, name := range r.ListFields() {
		fn, err := r.GetField(name, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if v := fn(dynamo.Vec3{0.3, 0.2, 0.1}, 0); !v.IsValid() {
			t.Errorf("%s: invalid vector %v", name, v)
		}
	}
	assert.Len(t, r.ListFields(), 7)
	assert.Contains(t, r.ListSchemes(), "dopri5")
	assert.NotEmpty(t, r.DefaultMetrics())
}

func TestRegistryParams(t *testing.T) {
	r := NewRegistry()

	fn, err := r.GetField("vortex", map[string]float64{"omega": 2})
	require.NoError(t, err)
	assert.Equal(t, dynamo.Vec3{0, 2, 0}, fn(dynamo.Vec3{1, 0, 0}, 0))

	_, err = r.GetField("vortex", map[string]float64{"speed": 2})
	assert.Error(t, err)

	_, err = r.GetField("lorenz", nil)
	assert.Error(t, err)
}

func TestRunDefaultConfig(t *testing.T) {
	exp := New(config.DefaultConfig())
	require.NoError(t, exp.Setup())

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sim.Completed, res.Status)
	require.Len(t, res.Trajectories, 5)
	for _, tr := range res.Trajectories {
		assert.Equal(t, particle.MaxSteps, tr.Reason)
	}
}

func TestRunBeforeSetup(t *testing.T) {
	_, err := New(config.DefaultConfig()).Run(context.Background())
	assert.Error(t, err)
}

func TestSetupRejectsUnknownField(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Field.Name = "lorenz"
	assert.Error(t, New(cfg).Setup())
}

func TestSampledField(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Field.Resolution = [3]int{33, 33, 3}
	cfg.Limits.MaxSteps = 50
	exp := New(cfg)
	require.NoError(t, exp.Setup())

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sim.Completed, res.Status)
	assert.Len(t, res.Trajectories, 5)
}

func TestAnalyzeFTLE(t *testing.T) {
	cfg := config.GetPreset("double_gyre", "ftle")
	cfg.Seeds.Counts = [3]int{9, 5, 1}
	cfg.Limits.MaxTime = 5
	exp := New(cfg)
	require.NoError(t, exp.Setup())

	res, err := exp.Run(context.Background())
	require.NoError(t, err)

	a, err := exp.Analyze(res)
	require.NoError(t, err)
	require.NotNil(t, a.FTLE)
	assert.Equal(t, [3]int{9, 5, 1}, a.FTLE.Dims)
	assert.Len(t, a.FTLE.Values, 45)
	assert.Nil(t, a.Punctures)
}

func TestAnalyzeTorus(t *testing.T) {
	cfg := config.GetPreset("torus", "rational")
	exp := New(cfg)
	require.NoError(t, exp.Setup())

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, sim.Completed, res.Status)

	a, err := exp.Analyze(res)
	require.NoError(t, err)
	assert.Nil(t, a.FTLE)
	assert.NotEmpty(t, a.Punctures)
	require.Len(t, a.Windings, 4)
	for _, w := range a.Windings {
		assert.InDelta(t, 1.0/3, w.Iota, 1e-3)
		assert.Equal(t, analysis.Rational{P: 1, Q: 3}, w.Ratio)
	}
	assert.Len(t, a.Spectral, 4)
}

func TestSafetyFactor(t *testing.T) {
	cfg := config.GetPreset("torus", "shear")
	cfg.Integration.Scheme = "rk4"
	cfg.Integration.MaxStep = 2 * math.Pi / 100
	cfg.Limits.MaxSteps = 500
	exp := New(cfg)
	require.NoError(t, exp.Setup())

	q := exp.SafetyFactor()
	got, err := q(context.Background(), 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-2)

	s, err := analysis.RefineRationalSurface(context.Background(), q, analysis.Rational{P: 5, Q: 2}, 0.2, 0.8, 1e-3, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Radius, 1e-2)
}
