package config

import (
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/seed"
)

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

// Presets holds ready-made runs keyed by field and preset name.
var Presets = map[string]map[string]*Config{
	"vortex": {
		"circles": preset(func(c *Config) {
			c.Integration.MaxStep = 0.05
			c.Limits.MaxTime = 2 * 3.141592653589793
			c.Limits.MaxSteps = 0
		}),
		"domains": preset(func(c *Config) {
			c.Field.Domains = [3]int{2, 2, 1}
			c.Parallel.Strategy = "domains"
			c.Parallel.Ranks = 4
			c.Limits.MaxTime = 4 * 3.141592653589793
			c.Limits.MaxSteps = 0
		}),
	},
	"sink": {
		"critical": preset(func(c *Config) {
			c.Field.Name = "sink"
			c.Field.Params = map[string]float64{"rate": 1}
			c.Integration.Scheme = "rk4"
			c.Integration.SpeedCutoff = 1e-6
			c.Seeds = seed.Source{Kind: seed.Circle, Center: dynamo.Vec3{}, Normal: dynamo.Vec3{0, 0, 1}, Radius: 1.5, Counts: [3]int{12}, Region: seed.Boundary}
		}),
	},
	"abc": {
		"chaos": preset(func(c *Config) {
			c.Field.Name = "abc"
			c.Field.Params = map[string]float64{"a": 1, "b": 0.7, "c": 0.43}
			c.Field.Bounds = dynamo.Box{Min: dynamo.Vec3{-4, -4, -4}, Max: dynamo.Vec3{4, 4, 4}}
			c.Field.Domains = [3]int{2, 2, 2}
			c.Parallel.Strategy = "hybrid"
			c.Parallel.Ranks = 4
			c.Parallel.GroupSize = 2
			c.Limits.MaxSteps = 0
			c.Limits.MaxDistance = 30
			c.Seeds = seed.Source{Kind: seed.Sphere, Center: dynamo.Vec3{}, Radius: 1, Counts: [3]int{6, 8, 0}, Region: seed.Boundary}
		}),
	},
	"double_gyre": {
		"ftle": preset(func(c *Config) {
			c.Field.Name = "double_gyre"
			c.Field.Bounds = dynamo.Box{Min: dynamo.Vec3{0, 0, -0.5}, Max: dynamo.Vec3{2, 1, 0.5}}
			c.Field.Domains = [3]int{2, 1, 1}
			c.Field.Ghost = 0.05
			c.Integration.MaxStep = 0.05
			c.Limits.MaxSteps = 0
			c.Limits.MaxTime = 10
			c.Seeds = seed.Source{Kind: seed.Box, Bounds: dynamo.Box{Min: dynamo.Vec3{0.01, 0.01, 0}, Max: dynamo.Vec3{1.99, 0.99, 0}}, Counts: [3]int{41, 21, 1}}
			c.Analysis.FTLE = "ftle"
		}),
	},
	"torus": {
		"rational": preset(func(c *Config) {
			c.Field.Name = "torus"
			c.Field.Params = map[string]float64{"r0": 3, "iota": 1.0 / 3}
			c.Field.Bounds = dynamo.Box{Min: dynamo.Vec3{-4, -4, -1}, Max: dynamo.Vec3{4, 4, 1}}
			c.Field.Domains = [3]int{2, 2, 1}
			c.Integration.Scheme = "rk4"
			c.Integration.MaxStep = 2 * 3.141592653589793 / 200
			c.Limits.MaxSteps = 30 * 200
			c.Parallel.Strategy = "domains"
			c.Parallel.Ranks = 4
			c.Seeds = seed.Source{Kind: seed.Line, Start: dynamo.Vec3{3.2, 0, 0}, End: dynamo.Vec3{3.8, 0, 0}, Counts: [3]int{4}}
			c.Analysis.Section = "toroidal"
			c.Analysis.Axis.R = 3
		}),
		"shear": preset(func(c *Config) {
			c.Field.Name = "torus"
			c.Field.Params = map[string]float64{"r0": 3, "iota": 0.2, "shear": 0.4}
			c.Field.Bounds = dynamo.Box{Min: dynamo.Vec3{-4, -4, -1}, Max: dynamo.Vec3{4, 4, 1}}
			c.Integration.MaxStep = 0.05
			c.Limits.MaxSteps = 20000
			c.Seeds = seed.Source{Kind: seed.Line, Start: dynamo.Vec3{3.05, 0, 0}, End: dynamo.Vec3{3.9, 0, 0}, Counts: [3]int{12}}
			c.Analysis.Section = "toroidal"
			c.Analysis.Axis.R = 3
			c.Analysis.Overlap = "merge"
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(field, name string) *Config {
	fieldPresets, ok := Presets[field]
	if !ok {
		return nil
	}
	cfg, ok := fieldPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ListPresets returns the preset names of field, sorted.
func ListPresets(field string) []string {
	fieldPresets, ok := Presets[field]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(fieldPresets))
	for name := range fieldPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetFields lists the fields that have presets, sorted.
func PresetFields() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
