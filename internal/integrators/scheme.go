// Package integrators advances a single position one step along a vector
// field. Schemes are stateless; anything a scheme needs to carry between
// steps travels in State.History so that it migrates with the particle.
package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Func evaluates the field at a position and time. Errors from the field
// source (notably dynamo.ErrNotResident) are returned unchanged.
type Func func(pos dynamo.Vec3, t float64) (dynamo.Vec3, error)

// State is the input of one step.
type State struct {
	Pos  dynamo.Vec3
	Time float64

	// History is scheme private carry-over, newest last.
	History     []dynamo.Vec3
	HistoryStep float64
}

// Result is the outcome of one step attempt.
type Result struct {
	Pos dynamo.Vec3
	// Velocity is the field at the start of the step.
	Velocity dynamo.Vec3
	// ErrEst is the embedded local error estimate, nil for fixed schemes.
	ErrEst *dynamo.Vec3
	// Stiff reports a positive stiffness test for this step.
	Stiff bool

	History     []dynamo.Vec3
	HistoryStep float64
}

// Scheme is one numerical integration method.
type Scheme interface {
	Name() string
	Order() int
	// Adaptive reports whether Step returns an error estimate.
	Adaptive() bool
	Step(f Func, s State, h float64) (Result, error)
}

var constructors = map[string]func() Scheme{
	"euler":           func() Scheme { return NewEuler() },
	"leapfrog":        func() Scheme { return NewLeapfrog() },
	"rk4":             func() Scheme { return NewRK4() },
	"dopri5":          func() Scheme { return NewDormandPrince() },
	"adams-bashforth": func() Scheme { return NewAdamsBashforth() },
	"toroidal":        func() Scheme { return NewToroidal() },
}

var aliases = map[string]string{
	"rk45":           "dopri5",
	"dormand-prince": "dopri5",
	"ab4":            "adams-bashforth",
}

// Lookup returns a new scheme by name.
func Lookup(name string) (Scheme, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown scheme: %s", name)
	}
	return ctor(), nil
}

// Names lists the canonical scheme names.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func checked(v dynamo.Vec3, err error) (dynamo.Vec3, error) {
	if err != nil {
		return dynamo.Vec3{}, err
	}
	if !v.IsValid() {
		return dynamo.Vec3{}, dynamo.ErrInvalidState
	}
	return v, nil
}
