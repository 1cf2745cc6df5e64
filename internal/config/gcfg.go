package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/seed"
)

// ExampleGcfgFile documents the INI-style layout accepted by Load.
const ExampleGcfgFile = `[Field]
# One of: uniform, sink, saddle, vortex, abc, double_gyre, torus.
Name = torus
# Repeat Param for every field parameter.
Param = r0=3
Param = iota=0.3333333333333333
# MinX MinY MinZ MaxX MaxY MaxZ
Bounds = 1 -4 -1 4 4 1
Domains = 2 2 1
Ghost = 0.1

[Seeds]
Kind = line
Start = 3.1 0 0
End = 3.8 0 0
Counts = 8 0 0

[Integration]
Scheme = rk4
MaxStep = 0.05

[Limits]
MaxSteps = 20000

[Parallel]
Ranks = 4
Strategy = domains

[Analysis]
Section = toroidal
Axis = 3 0
`

// vec is a Vec3 written as three numbers.
type vec dynamo.Vec3

func (v *vec) UnmarshalText(text []byte) error {
	f, err := floats(string(text), 3)
	if err != nil {
		return err
	}
	copy(v[:], f)
	return nil
}

// bounds is a Box written as six numbers.
type bounds dynamo.Box

func (b *bounds) UnmarshalText(text []byte) error {
	f, err := floats(string(text), 6)
	if err != nil {
		return err
	}
	copy(b.Min[:], f[:3])
	copy(b.Max[:], f[3:])
	return nil
}

// counts is a [3]int written as three integers.
type counts [3]int

func (c *counts) UnmarshalText(text []byte) error {
	f, err := floats(string(text), 3)
	if err != nil {
		return err
	}
	for i := range c {
		c[i] = int(f[i])
		if float64(c[i]) != f[i] {
			return fmt.Errorf("%q is not a list of integers", text)
		}
	}
	return nil
}

// axis is an analysis.Axis written as R Z.
type axis [2]float64

func (a *axis) UnmarshalText(text []byte) error {
	f, err := floats(string(text), 2)
	if err != nil {
		return err
	}
	copy(a[:], f)
	return nil
}

func floats(s string, n int) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type gcfgFile struct {
	Field struct {
		Name       string
		Param      []string
		Bounds     bounds
		Domains    counts
		Ghost      float64
		Resolution counts
		Time       []float64
	}
	Seeds struct {
		Kind       string
		Sampling   string
		Region     string
		Point      []vec
		Start      vec
		End        vec
		Center     vec
		Normal     vec
		Radius     float64
		Width      float64
		Height     float64
		Bounds     bounds
		Counts     counts
		Density    float64
		RandomSeed uint64
	}
	Integration struct {
		Scheme              string
		AbsTol              float64
		RelTol              float64
		MinStep             float64
		MaxStep             float64
		LimitMaxStep        bool
		Direction           string
		StartTime           float64
		Pathlines           bool
		SpeedCutoff         float64
		CriticalPointWindow int
	}
	Limits struct {
		MaxSteps       int
		MaxTime        float64
		MaxDistance    float64
		MaxSize        float64
		WarnOnMaxSteps bool
	}
	Parallel struct {
		Strategy      string
		Ranks         int
		GroupSize     int
		CommThreshold int
		CacheCapacity int
		WorkGroupSize int
	}
	Analysis struct {
		FTLE           string
		Section        string
		Phi            float64
		Point          vec
		Normal         vec
		Axis           axis
		Overlap        string
		Tolerance      float64
		MaxDenominator int
		Threshold      float64
	}
	Output struct {
		Dir string
	}
}

func loadGcfg(path string) (*Config, error) {
	f := toGcfg(DefaultConfig())
	if err := gcfg.ReadFileInto(f, path); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.config()
}

func toGcfg(c *Config) *gcfgFile {
	f := &gcfgFile{}

	f.Field.Name = c.Field.Name
	for k, v := range c.Field.Params {
		f.Field.Param = append(f.Field.Param, fmt.Sprintf("%s=%g", k, v))
	}
	f.Field.Bounds = bounds(c.Field.Bounds)
	f.Field.Domains = c.Field.Domains
	f.Field.Ghost = c.Field.Ghost
	f.Field.Resolution = c.Field.Resolution
	f.Field.Time = c.Field.Times

	s := c.Seeds
	f.Seeds.Kind = string(s.Kind)
	f.Seeds.Sampling = string(s.Sampling)
	f.Seeds.Region = string(s.Region)
	for _, p := range s.Points {
		f.Seeds.Point = append(f.Seeds.Point, vec(p))
	}
	f.Seeds.Start, f.Seeds.End = vec(s.Start), vec(s.End)
	f.Seeds.Center, f.Seeds.Normal = vec(s.Center), vec(s.Normal)
	f.Seeds.Radius, f.Seeds.Width, f.Seeds.Height = s.Radius, s.Width, s.Height
	f.Seeds.Bounds = bounds(s.Bounds)
	f.Seeds.Counts = s.Counts
	f.Seeds.Density = s.Density
	f.Seeds.RandomSeed = s.RandomSeed

	in := c.Integration
	f.Integration.Scheme = in.Scheme
	f.Integration.AbsTol, f.Integration.RelTol = in.AbsTol, in.RelTol
	f.Integration.MinStep, f.Integration.MaxStep = in.MinStep, in.MaxStep
	f.Integration.LimitMaxStep = in.LimitMaxStep
	f.Integration.Direction = in.Direction
	f.Integration.StartTime = in.StartTime
	f.Integration.Pathlines = in.Pathlines
	f.Integration.SpeedCutoff = in.SpeedCutoff
	f.Integration.CriticalPointWindow = in.CriticalPointWindow

	f.Limits.MaxSteps = c.Limits.MaxSteps
	f.Limits.MaxTime = c.Limits.MaxTime
	f.Limits.MaxDistance = c.Limits.MaxDistance
	f.Limits.MaxSize = c.Limits.MaxSize
	f.Limits.WarnOnMaxSteps = c.Limits.WarnOnMaxSteps

	p := c.Parallel
	f.Parallel.Strategy = p.Strategy
	f.Parallel.Ranks, f.Parallel.GroupSize = p.Ranks, p.GroupSize
	f.Parallel.CommThreshold = p.CommThreshold
	f.Parallel.CacheCapacity = p.CacheCapacity
	f.Parallel.WorkGroupSize = p.WorkGroupSize

	a := c.Analysis
	f.Analysis.FTLE, f.Analysis.Section = a.FTLE, a.Section
	f.Analysis.Phi = a.Phi
	f.Analysis.Point, f.Analysis.Normal = vec(a.Point), vec(a.Normal)
	f.Analysis.Axis = axis{a.Axis.R, a.Axis.Z}
	f.Analysis.Overlap = a.Overlap
	f.Analysis.Tolerance = a.Tolerance
	f.Analysis.MaxDenominator = a.MaxDenominator
	f.Analysis.Threshold = a.Threshold

	f.Output.Dir = c.Output
	return f
}

func (f *gcfgFile) config() (*Config, error) {
	c := &Config{}

	c.Field.Name = f.Field.Name
	for _, kv := range f.Field.Param {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("field param %q: want name=value", kv)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("field param %q: %w", kv, err)
		}
		if c.Field.Params == nil {
			c.Field.Params = make(map[string]float64)
		}
		c.Field.Params[strings.TrimSpace(k)] = x
	}
	c.Field.Bounds = dynamo.Box(f.Field.Bounds)
	c.Field.Domains = f.Field.Domains
	c.Field.Ghost = f.Field.Ghost
	c.Field.Resolution = f.Field.Resolution
	c.Field.Times = f.Field.Time

	c.Seeds = seed.Source{
		Kind:       seed.Kind(f.Seeds.Kind),
		Sampling:   seed.Sampling(f.Seeds.Sampling),
		Region:     seed.Region(f.Seeds.Region),
		Start:      dynamo.Vec3(f.Seeds.Start),
		End:        dynamo.Vec3(f.Seeds.End),
		Center:     dynamo.Vec3(f.Seeds.Center),
		Normal:     dynamo.Vec3(f.Seeds.Normal),
		Radius:     f.Seeds.Radius,
		Width:      f.Seeds.Width,
		Height:     f.Seeds.Height,
		Bounds:     dynamo.Box(f.Seeds.Bounds),
		Counts:     f.Seeds.Counts,
		Density:    f.Seeds.Density,
		RandomSeed: f.Seeds.RandomSeed,
	}
	for _, p := range f.Seeds.Point {
		c.Seeds.Points = append(c.Seeds.Points, dynamo.Vec3(p))
	}

	c.Integration = IntegrationConfig{
		Scheme:              f.Integration.Scheme,
		AbsTol:              f.Integration.AbsTol,
		RelTol:              f.Integration.RelTol,
		MinStep:             f.Integration.MinStep,
		MaxStep:             f.Integration.MaxStep,
		LimitMaxStep:        f.Integration.LimitMaxStep,
		Direction:           f.Integration.Direction,
		StartTime:           f.Integration.StartTime,
		Pathlines:           f.Integration.Pathlines,
		SpeedCutoff:         f.Integration.SpeedCutoff,
		CriticalPointWindow: f.Integration.CriticalPointWindow,
	}

	c.Limits.MaxSteps = f.Limits.MaxSteps
	c.Limits.MaxTime = f.Limits.MaxTime
	c.Limits.MaxDistance = f.Limits.MaxDistance
	c.Limits.MaxSize = f.Limits.MaxSize
	c.Limits.WarnOnMaxSteps = f.Limits.WarnOnMaxSteps

	c.Parallel = ParallelConfig{
		Strategy:      f.Parallel.Strategy,
		Ranks:         f.Parallel.Ranks,
		GroupSize:     f.Parallel.GroupSize,
		CommThreshold: f.Parallel.CommThreshold,
		CacheCapacity: f.Parallel.CacheCapacity,
		WorkGroupSize: f.Parallel.WorkGroupSize,
	}

	c.Analysis = AnalysisConfig{
		FTLE:           f.Analysis.FTLE,
		Section:        f.Analysis.Section,
		Phi:            f.Analysis.Phi,
		Point:          dynamo.Vec3(f.Analysis.Point),
		Normal:         dynamo.Vec3(f.Analysis.Normal),
		Overlap:        f.Analysis.Overlap,
		Tolerance:      f.Analysis.Tolerance,
		MaxDenominator: f.Analysis.MaxDenominator,
		Threshold:      f.Analysis.Threshold,
	}
	c.Analysis.Axis.R, c.Analysis.Axis.Z = f.Analysis.Axis[0], f.Analysis.Axis[1]

	c.Output = f.Output.Dir
	return c, nil
}
