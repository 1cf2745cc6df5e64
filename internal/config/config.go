package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/migrate"
	"github.com/san-kum/flowline/internal/seed"
	"github.com/san-kum/flowline/internal/sim"
	"github.com/san-kum/flowline/internal/termination"
)

const (
	DefaultField    = "vortex"
	DefaultMaxSteps = 1000
	DefaultGhost    = 0.1
	DefaultOutput   = ".flowline"
)

// Config is the on-disk description of a run.
type Config struct {
	Field       FieldConfig        `yaml:"field"`
	Seeds       seed.Source        `yaml:"seeds"`
	Integration IntegrationConfig  `yaml:"integration"`
	Limits      termination.Limits `yaml:"limits"`
	Parallel    ParallelConfig     `yaml:"parallel"`
	Analysis    AnalysisConfig     `yaml:"analysis"`
	Output      string             `yaml:"output"`
}

// FieldConfig selects an analytic field and the mesh it is served on.
type FieldConfig struct {
	Name    string             `yaml:"name"`
	Params  map[string]float64 `yaml:"params,omitempty"`
	Bounds  dynamo.Box         `yaml:"bounds"`
	Domains [3]int             `yaml:"domains"`
	Ghost   float64            `yaml:"ghost"`
	// Resolution samples the field on a grid per domain; zero evaluates
	// it exactly.
	Resolution [3]int    `yaml:"resolution"`
	Times      []float64 `yaml:"times,omitempty"`
}

// Sampled reports whether the field is served as grid blocks.
func (f FieldConfig) Sampled() bool {
	return f.Resolution != [3]int{}
}

type IntegrationConfig struct {
	Scheme              string  `yaml:"scheme"`
	AbsTol              float64 `yaml:"abs_tol"`
	RelTol              float64 `yaml:"rel_tol"`
	MinStep             float64 `yaml:"min_step"`
	MaxStep             float64 `yaml:"max_step"`
	LimitMaxStep        bool    `yaml:"limit_max_step"`
	Direction           string  `yaml:"direction"`
	StartTime           float64 `yaml:"start_time"`
	Pathlines           bool    `yaml:"pathlines"`
	SpeedCutoff         float64 `yaml:"speed_cutoff"`
	CriticalPointWindow int     `yaml:"critical_point_window"`
}

type ParallelConfig struct {
	Strategy      string `yaml:"strategy"`
	Ranks         int    `yaml:"ranks"`
	GroupSize     int    `yaml:"group_size"`
	CommThreshold int    `yaml:"comm_threshold"`
	CacheCapacity int    `yaml:"cache_capacity"`
	WorkGroupSize int    `yaml:"work_group_size"`
}

// AnalysisConfig drives the derived analyses run after integration.
type AnalysisConfig struct {
	FTLE    string        `yaml:"ftle,omitempty"`
	Section string        `yaml:"section,omitempty"`
	Phi     float64       `yaml:"phi"`
	Point   dynamo.Vec3   `yaml:"point"`
	Normal  dynamo.Vec3   `yaml:"normal"`
	Axis    analysis.Axis `yaml:"axis"`
	Overlap string        `yaml:"overlap,omitempty"`

	Tolerance      float64 `yaml:"tolerance"`
	MaxDenominator int     `yaml:"max_denominator"`
	Threshold      float64 `yaml:"threshold"`
}

func DefaultConfig() *Config {
	req := sim.DefaultRequest()
	win := analysis.DefaultWindingOptions()
	return &Config{
		Field: FieldConfig{
			Name:    DefaultField,
			Bounds:  dynamo.Box{Min: dynamo.Vec3{-2, -2, -1}, Max: dynamo.Vec3{2, 2, 1}},
			Domains: [3]int{1, 1, 1},
			Ghost:   DefaultGhost,
		},
		Seeds: seed.Source{
			Kind:   seed.Line,
			Start:  dynamo.Vec3{0.2, 0, 0},
			End:    dynamo.Vec3{1.8, 0, 0},
			Counts: [3]int{5, 0, 0},
		},
		Integration: IntegrationConfig{
			Scheme:              req.Scheme,
			AbsTol:              req.AbsTol,
			RelTol:              req.RelTol,
			MinStep:             req.MinStep,
			MaxStep:             req.MaxStep,
			Direction:           req.Direction.String(),
			SpeedCutoff:         req.SpeedCutoff,
			CriticalPointWindow: req.CriticalPointWindow,
		},
		Limits: termination.Limits{MaxSteps: DefaultMaxSteps},
		Parallel: ParallelConfig{
			Strategy:      string(req.Strategy),
			Ranks:         req.Ranks,
			GroupSize:     req.GroupSize,
			CommThreshold: req.CommThreshold,
			CacheCapacity: req.CacheCapacity,
			WorkGroupSize: req.WorkGroupSize,
		},
		Analysis: AnalysisConfig{
			Normal:         dynamo.Vec3{0, 0, 1},
			Tolerance:      win.Tolerance,
			MaxDenominator: win.MaxDenominator,
			Threshold:      win.Threshold,
		},
		Output: DefaultOutput,
	}
}

// Load reads a YAML file, or an INI-style file when the extension is
// .gcfg or .ini. Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gcfg", ".ini":
		return loadGcfg(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Field.Params != nil {
		out.Field.Params = make(map[string]float64, len(c.Field.Params))
		for k, v := range c.Field.Params {
			out.Field.Params[k] = v
		}
	}
	out.Field.Times = append([]float64(nil), c.Field.Times...)
	out.Seeds.Points = append([]dynamo.Vec3(nil), c.Seeds.Points...)
	return &out
}

// Request converts the integration and parallel sections into a request.
// The request is validated by the coordinator.
func (c *Config) Request() (sim.Request, error) {
	dir, err := dynamo.ParseDirection(c.Integration.Direction)
	if err != nil {
		return sim.Request{}, err
	}
	strategy, err := migrate.ParseStrategy(c.Parallel.Strategy)
	if err != nil {
		return sim.Request{}, err
	}

	req := sim.DefaultRequest()
	req.Scheme = c.Integration.Scheme
	req.AbsTol = c.Integration.AbsTol
	req.RelTol = c.Integration.RelTol
	req.MinStep = c.Integration.MinStep
	req.MaxStep = c.Integration.MaxStep
	req.LimitMaxStep = c.Integration.LimitMaxStep
	req.Direction = dir
	req.StartTime = c.Integration.StartTime
	req.Pathlines = c.Integration.Pathlines
	req.SpeedCutoff = c.Integration.SpeedCutoff
	req.CriticalPointWindow = c.Integration.CriticalPointWindow
	req.Limits = c.Limits
	req.Strategy = strategy
	req.Ranks = c.Parallel.Ranks
	req.GroupSize = c.Parallel.GroupSize
	req.CommThreshold = c.Parallel.CommThreshold
	req.CacheCapacity = c.Parallel.CacheCapacity
	req.WorkGroupSize = c.Parallel.WorkGroupSize
	return req, nil
}

// PoincareSection builds the Poincaré section of the analysis block.
func (a AnalysisConfig) PoincareSection() (analysis.Section, error) {
	switch a.Section {
	case "", "toroidal":
		return analysis.ToroidalSection{Phi: a.Phi}, nil
	case "plane":
		return analysis.NewPlaneSection(a.Point, a.Normal)
	}
	return nil, fmt.Errorf("unknown section: %q", a.Section)
}

func (a AnalysisConfig) WindingOptions() analysis.WindingOptions {
	return analysis.WindingOptions{
		Phi:            a.Phi,
		MaxDenominator: a.MaxDenominator,
		Tolerance:      a.Tolerance,
		Threshold:      a.Threshold,
	}
}
