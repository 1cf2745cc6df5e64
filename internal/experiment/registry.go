package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/field"
	"github.com/san-kum/flowline/internal/integrators"
	"github.com/san-kum/flowline/internal/metrics"
)

// FieldSpec builds an analytic field from named parameters. Defaults
// fills in parameters the caller leaves out.
type FieldSpec struct {
	Description string
	Defaults    map[string]float64
	Build       func(p map[string]float64) field.Func
}

type Registry struct {
	fields map[string]FieldSpec
}

func NewRegistry() *Registry {
	r := &Registry{fields: make(map[string]FieldSpec)}

	r.fields["uniform"] = FieldSpec{
		Description: "constant vector (vx, vy, vz)",
		Defaults:    map[string]float64{"vx": 1, "vy": 0, "vz": 0},
		Build: func(p map[string]float64) field.Func {
			return field.Uniform(dynamo.Vec3{p["vx"], p["vy"], p["vz"]})
		},
	}
	r.fields["sink"] = FieldSpec{
		Description: "stable node at (x, y, z)",
		Defaults:    map[string]float64{"x": 0, "y": 0, "z": 0, "rate": 1},
		Build: func(p map[string]float64) field.Func {
			return field.Sink(dynamo.Vec3{p["x"], p["y"], p["z"]}, p["rate"])
		},
	}
	r.fields["saddle"] = FieldSpec{
		Description: "hyperbolic point at the origin",
		Defaults:    map[string]float64{"rate": 1},
		Build:       func(p map[string]float64) field.Func { return field.Saddle(p["rate"]) },
	}
	r.fields["vortex"] = FieldSpec{
		Description: "solid-body rotation about z",
		Defaults:    map[string]float64{"omega": 1},
		Build:       func(p map[string]float64) field.Func { return field.Vortex(p["omega"]) },
	}
	r.fields["abc"] = FieldSpec{
		Description: "Arnold-Beltrami-Childress flow",
		Defaults:    map[string]float64{"a": 1, "b": 0.7, "c": 0.43},
		Build: func(p map[string]float64) field.Func {
			return field.ABC(p["a"], p["b"], p["c"])
		},
	}
	r.fields["double_gyre"] = FieldSpec{
		Description: "time-periodic double gyre on [0,2]x[0,1]",
		Defaults:    map[string]float64{"amp": 0.1, "eps": 0.25, "omega": 0.6283185307179586},
		Build: func(p map[string]float64) field.Func {
			return field.DoubleGyre(p["amp"], p["eps"], p["omega"])
		},
	}
	r.fields["torus"] = FieldSpec{
		Description: "nested flux surfaces around the axis R = r0",
		Defaults:    map[string]float64{"r0": 3, "iota": 1.0 / 3, "shear": 0},
		Build: func(p map[string]float64) field.Func {
			return field.Torus(p["r0"], p["iota"], p["shear"])
		},
	}

	return r
}

// GetField builds the named field. Unknown parameter names are rejected.
func (r *Registry) GetField(name string, params map[string]float64) (field.Func, error) {
	spec, ok := r.fields[name]
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", name)
	}
	p := make(map[string]float64, len(spec.Defaults))
	for k, v := range spec.Defaults {
		p[k] = v
	}
	for k, v := range params {
		if _, ok := spec.Defaults[k]; !ok {
			return nil, fmt.Errorf("field %s has no parameter %q", name, k)
		}
		p[k] = v
	}
	return spec.Build(p), nil
}

func (r *Registry) Field(name string) (FieldSpec, bool) {
	spec, ok := r.fields[name]
	return spec, ok
}

func (r *Registry) ListFields() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListSchemes returns the registered integration schemes.
func (r *Registry) ListSchemes() []string {
	return integrators.Names()
}

func (r *Registry) DefaultMetrics() []metrics.Metric {
	return metrics.Defaults()
}
