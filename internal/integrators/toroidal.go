package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Toroidal integrates with RK4 in cylindrical (R, φ, Z) coordinates about
// the z axis. Near-circular field lines of toroidal devices stay on their
// flux surface far better than with Cartesian RK4 at the same step.
type Toroidal struct{}

func NewToroidal() *Toroidal {
	return &Toroidal{}
}

func (tr *Toroidal) Name() string   { return "toroidal" }
func (tr *Toroidal) Order() int     { return 4 }
func (tr *Toroidal) Adaptive() bool { return false }

func (tr *Toroidal) Step(f Func, s State, h float64) (Result, error) {
	cyl := func(c dynamo.Vec3, t float64) (dynamo.Vec3, error) {
		r, phi := c[0], c[1]
		if r <= 0 {
			return dynamo.Vec3{}, fmt.Errorf("toroidal step on the axis (R=%g): %w", r, dynamo.ErrInvalidState)
		}
		sin, cos := math.Sincos(phi)
		v, err := f(dynamo.Vec3{r * cos, r * sin, c[2]}, t)
		if err != nil {
			return dynamo.Vec3{}, err
		}
		return dynamo.Vec3{
			v[0]*cos + v[1]*sin,
			(-v[0]*sin + v[1]*cos) / r,
			v[2],
		}, nil
	}

	x := s.Pos
	start := dynamo.Vec3{math.Hypot(x[0], x[1]), math.Atan2(x[1], x[0]), x[2]}
	end, k1, err := rk4(cyl, start, s.Time, h)
	if err != nil {
		return Result{}, err
	}

	sin0, cos0 := math.Sincos(start[1])
	v0 := dynamo.Vec3{
		k1[0]*cos0 - start[0]*k1[1]*sin0,
		k1[0]*sin0 + start[0]*k1[1]*cos0,
		k1[2],
	}
	sin, cos := math.Sincos(end[1])
	return Result{Pos: dynamo.Vec3{end[0] * cos, end[0] * sin, end[2]}, Velocity: v0}, nil
}

var _ Scheme = (*Toroidal)(nil)
