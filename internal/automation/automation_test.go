package automation

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/sim"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shortConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Limits.MaxSteps = 50
	return cfg
}

func TestScenarioStepConfig(t *testing.T) {
	cfg, err := ScenarioStep{Field: "uniform", Scheme: "rk4", Ranks: 2, MaxSteps: 10, Params: map[string]float64{"vx": 2}}.Config()
	require.NoError(t, err)
	assert.Equal(t, "uniform", cfg.Field.Name)
	assert.Equal(t, "rk4", cfg.Integration.Scheme)
	assert.Equal(t, 2, cfg.Parallel.Ranks)
	assert.Equal(t, 10, cfg.Limits.MaxSteps)
	assert.Equal(t, 2.0, cfg.Field.Params["vx"])

	cfg, err = ScenarioStep{}.Config()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultField, cfg.Field.Name)

	_, err = ScenarioStep{Field: "torus", Preset: "nope"}.Config()
	assert.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	doc := `name: compare
description: two schemes on the vortex
steps:
  - field: vortex
    scheme: rk4
    max_steps: 20
  - field: vortex
    scheme: dopri5
    strategy: curves
    ranks: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "compare", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "rk4", sc.Steps[0].Scheme)
	assert.Equal(t, 20, sc.Steps[0].MaxSteps)
	assert.Equal(t, "curves", sc.Steps[1].Strategy)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: empty\n"), 0o644))
	_, err = LoadScenario(empty)
	assert.Error(t, err)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc := &Scenario{Steps: []ScenarioStep{
		{Field: "vortex", Scheme: "rk4", MaxSteps: 30},
		{Field: "vortex", MaxSteps: 30, Ranks: 2, Strategy: "curves"},
	}}
	outs, err := RunScenario(context.Background(), sc, quiet())
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, out := range outs {
		assert.Equal(t, sim.Completed, out.Result.Status)
		assert.Len(t, out.Result.Trajectories, 5)
		assert.Equal(t, 1.0, out.Metrics["completion"])
	}

	bad := &Scenario{Steps: []ScenarioStep{{Field: "vortex", MaxSteps: 10}, {Field: "nope"}}}
	outs, err = RunScenario(context.Background(), bad, quiet())
	assert.Error(t, err)
	assert.Len(t, outs, 1)
}

func TestRunSweep(t *testing.T) {
	sweep := &ParameterSweep{Base: shortConfig(), ParamName: "omega", ParamMin: 0.5, ParamMax: 2, NumSteps: 3}
	results, err := RunSweep(context.Background(), sweep, quiet())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.InDelta(t, 0.5, results[0].ParamValue, 1e-12)
	assert.InDelta(t, 1.25, results[1].ParamValue, 1e-12)
	assert.InDelta(t, 2.0, results[2].ParamValue, 1e-12)
	assert.Greater(t, results[2].Metrics["max_speed"], results[0].Metrics["max_speed"])
	assert.Nil(t, sweep.Base.Field.Params, "base config is not modified")

	_, err = RunSweep(context.Background(), &ParameterSweep{Base: shortConfig(), ParamName: "omega"}, quiet())
	assert.Error(t, err)

	_, err = RunSweep(context.Background(), &ParameterSweep{Base: shortConfig(), ParamName: "bogus", NumSteps: 1}, quiet())
	assert.Error(t, err)
}

func TestBest(t *testing.T) {
	results := []SweepResult{
		{ParamValue: 1, Metrics: map[string]float64{"m": 3}},
		{ParamValue: 2, Metrics: map[string]float64{"m": 1}},
		{ParamValue: 3, Metrics: map[string]float64{"m": 5}},
		{ParamValue: 4, Metrics: map[string]float64{"other": 0}},
	}
	best, ok := Best(results, "m", false)
	require.True(t, ok)
	assert.Equal(t, 2.0, best.ParamValue)

	best, ok = Best(results, "m", true)
	require.True(t, ok)
	assert.Equal(t, 3.0, best.ParamValue)

	_, ok = Best(results, "missing", false)
	assert.False(t, ok)
}

func TestRunMonteCarlo(t *testing.T) {
	mc := &MonteCarloConfig{Base: shortConfig(), Perturbation: 0.05, NumTrials: 3, Seed: 7}
	a, err := RunMonteCarlo(context.Background(), mc, quiet())
	require.NoError(t, err)
	require.Len(t, a, 3)
	for _, r := range a {
		assert.Equal(t, 5, r.Total)
		for _, c := range r.Offset {
			assert.LessOrEqual(t, c, 0.05)
			assert.GreaterOrEqual(t, c, -0.05)
		}
	}
	assert.NotEqual(t, a[0].Offset, a[1].Offset)
	assert.Equal(t, dynamo.Vec3{0.2, 0, 0}, mc.Base.Seeds.Start, "base seeds are not modified")

	b, err := RunMonteCarlo(context.Background(), mc, quiet())
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].Offset, b[i].Offset)
	}
}

func TestMonteCarloStats(t *testing.T) {
	contained, escaped := MonteCarloStats([]MonteCarloResult{{Exited: 0}, {Exited: 2}, {Exited: 0}})
	assert.Equal(t, 2, contained)
	assert.Equal(t, 1, escaped)
}
