// Package automation drives batches of runs: scripted scenarios, one
// parameter sweeps with a best-value search, and Monte Carlo seed
// perturbation.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/experiment"
	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/sim"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset of Field (or the defaults) and
// overrides what it sets.
type ScenarioStep struct {
	Field    string             `yaml:"field"`
	Preset   string             `yaml:"preset"`
	Scheme   string             `yaml:"scheme"`
	Strategy string             `yaml:"strategy"`
	Ranks    int                `yaml:"ranks"`
	MaxSteps int                `yaml:"max_steps"`
	Params   map[string]float64 `yaml:"params"`
}

// Config resolves the step into a run config.
func (s ScenarioStep) Config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		cfg = config.GetPreset(s.Field, s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %s/%s", s.Field, s.Preset)
		}
	} else if s.Field != "" {
		cfg.Field.Name = s.Field
	}
	if s.Scheme != "" {
		cfg.Integration.Scheme = s.Scheme
	}
	if s.Strategy != "" {
		cfg.Parallel.Strategy = s.Strategy
	}
	if s.Ranks > 0 {
		cfg.Parallel.Ranks = s.Ranks
	}
	if s.MaxSteps > 0 {
		cfg.Limits.MaxSteps = s.MaxSteps
	}
	if s.Params != nil {
		cfg.Field.Params = s.Params
	}
	return cfg, nil
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// Outcome is one finished run of a batch.
type Outcome struct {
	Config  *config.Config
	Result  *sim.Result
	Metrics map[string]float64
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Outcome, error) {
	exp := experiment.New(cfg).WithLogger(logger)
	if err := exp.Setup(); err != nil {
		return Outcome{}, err
	}
	res, err := exp.Run(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Config:  cfg,
		Result:  res,
		Metrics: metrics.Summarize(res.Trajectories, metrics.Defaults()),
	}, nil
}

// RunScenario executes all steps in a scenario, stopping at the first
// failing one.
func RunScenario(ctx context.Context, scenario *Scenario, logger *slog.Logger) ([]Outcome, error) {
	results := make([]Outcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		logger.Info("scenario: step", "step", i+1, "of", len(scenario.Steps), "field", cfg.Field.Name)

		out, err := run(ctx, cfg, logger)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, out)
	}

	return results, nil
}

// ParameterSweep runs Base once per evenly spaced value of one field
// parameter.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds the outcome at one parameter value.
type SweepResult struct {
	ParamValue float64
	Status     sim.Status
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, logger *slog.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep
		cfg := sweep.Base.Clone()
		params := make(map[string]float64, len(cfg.Field.Params)+1)
		for k, v := range cfg.Field.Params {
			params[k] = v
		}
		params[sweep.ParamName] = paramVal
		cfg.Field.Params = params

		out, err := run(ctx, cfg, logger)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}
		results = append(results, SweepResult{
			ParamValue: paramVal,
			Status:     out.Result.Status,
			Metrics:    out.Metrics,
		})
		logger.Info("sweep: step", "step", i+1, "of", sweep.NumSteps, sweep.ParamName, paramVal)
	}

	return results, nil
}

// Best returns the sweep result with the smallest (or, with maximize,
// largest) value of metric. ok is false when no result reports it.
func Best(results []SweepResult, metric string, maximize bool) (best SweepResult, ok bool) {
	bestVal := math.Inf(1)
	if maximize {
		bestVal = math.Inf(-1)
	}
	for _, r := range results {
		v, has := r.Metrics[metric]
		if !has || math.IsNaN(v) {
			continue
		}
		if (maximize && v > bestVal) || (!maximize && v < bestVal) {
			bestVal, best, ok = v, r, true
		}
	}
	return best, ok
}

// MonteCarloConfig jitters the seed source of Base per trial.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         uint64
}

// MonteCarloResult holds one trial.
type MonteCarloResult struct {
	TrialID int
	Offset  dynamo.Vec3
	Exited  int
	Total   int
	Metrics map[string]float64
}

// Contained reports whether no line of the trial left the domain.
func (r MonteCarloResult) Contained() bool { return r.Exited == 0 }

// RunMonteCarlo executes multiple trials with random seed offsets, uniform
// in [-Perturbation, Perturbation] per axis.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, logger *slog.Logger) ([]MonteCarloResult, error) {
	results := make([]MonteCarloResult, 0, cfg.NumTrials)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	for trial := 0; trial < cfg.NumTrials; trial++ {
		var off dynamo.Vec3
		for i := range off {
			off[i] = (rng.Float64()*2 - 1) * cfg.Perturbation
		}
		trialCfg := cfg.Base.Clone()
		shift(&trialCfg.Seeds.Start, off)
		shift(&trialCfg.Seeds.End, off)
		shift(&trialCfg.Seeds.Center, off)
		for i := range trialCfg.Seeds.Points {
			shift(&trialCfg.Seeds.Points[i], off)
		}

		out, err := run(ctx, trialCfg, logger)
		if err != nil {
			return results, fmt.Errorf("trial %d: %w", trial, err)
		}
		r := MonteCarloResult{TrialID: trial, Offset: off, Total: len(out.Result.Trajectories), Metrics: out.Metrics}
		for _, tr := range out.Result.Trajectories {
			if tr.Reason == particle.ExitedDomain {
				r.Exited++
			}
		}
		results = append(results, r)

		if (trial+1)%10 == 0 {
			logger.Info("montecarlo: progress", "done", trial+1, "of", cfg.NumTrials)
		}
	}

	return results, nil
}

func shift(v *dynamo.Vec3, off dynamo.Vec3) {
	*v = v.Add(off)
}

// MonteCarloStats counts trials that kept every line inside the domain.
func MonteCarloStats(results []MonteCarloResult) (contained int, escaped int) {
	for _, r := range results {
		if r.Contained() {
			contained++
		} else {
			escaped++
		}
	}
	return
}
