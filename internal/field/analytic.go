package field

import (
	"math"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Uniform is a constant field.
func Uniform(v dynamo.Vec3) Func {
	return func(dynamo.Vec3, float64) dynamo.Vec3 { return v }
}

// Sink is a stable node at center: v = -rate·(x - center).
func Sink(center dynamo.Vec3, rate float64) Func {
	return func(p dynamo.Vec3, _ float64) dynamo.Vec3 {
		return p.Sub(center).Scale(-rate)
	}
}

// Saddle stretches along x and contracts along y.
func Saddle(rate float64) Func {
	return func(p dynamo.Vec3, _ float64) dynamo.Vec3 {
		return dynamo.Vec3{rate * p[0], -rate * p[1], 0}
	}
}

// Vortex is solid-body rotation about the z axis.
func Vortex(omega float64) Func {
	return func(p dynamo.Vec3, _ float64) dynamo.Vec3 {
		return dynamo.Vec3{-omega * p[1], omega * p[0], 0}
	}
}

// ABC is the Arnold–Beltrami–Childress flow.
func ABC(a, b, c float64) Func {
	return func(p dynamo.Vec3, _ float64) dynamo.Vec3 {
		x, y, z := p[0], p[1], p[2]
		return dynamo.Vec3{
			a*math.Sin(z) + c*math.Cos(y),
			b*math.Sin(x) + a*math.Cos(z),
			c*math.Sin(y) + b*math.Cos(x),
		}
	}
}

// Torus is a toroidal field whose lines wind on nested tori around the
// circular magnetic axis R = r0, Z = 0. The rotational transform on the
// surface of minor radius r is iota0 + shear·r.
func Torus(r0, iota0, shear float64) Func {
	return func(p dynamo.Vec3, _ float64) dynamo.Vec3 {
		x, y, z := p[0], p[1], p[2]
		big := math.Hypot(x, y)
		if big == 0 {
			return dynamo.Vec3{}
		}
		minor := math.Hypot(big-r0, z)
		iota := iota0 + shear*minor

		// dφ/dt = 1, dθ/dt = iota.
		dR := -iota * z
		dZ := iota * (big - r0)
		return dynamo.Vec3{
			dR*x/big - y,
			dR*y/big + x,
			dZ,
		}
	}
}

// DoubleGyre is the time-periodic double gyre on [0,2]×[0,1].
func DoubleGyre(amp, eps, omega float64) Func {
	return func(p dynamo.Vec3, t float64) dynamo.Vec3 {
		a := eps * math.Sin(omega*t)
		b := 1 - 2*eps*math.Sin(omega*t)
		f := a*p[0]*p[0] + b*p[0]
		df := 2*a*p[0] + b
		return dynamo.Vec3{
			-math.Pi * amp * math.Sin(math.Pi*f) * math.Cos(math.Pi*p[1]),
			math.Pi * amp * math.Cos(math.Pi*f) * math.Sin(math.Pi*p[1]) * df,
			0,
		}
	}
}
