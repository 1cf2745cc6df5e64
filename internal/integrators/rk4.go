package integrators

import "github.com/san-kum/flowline/internal/dynamo"

type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string   { return "rk4" }
func (r *RK4) Order() int     { return 4 }
func (r *RK4) Adaptive() bool { return false }

func (r *RK4) Step(f Func, s State, h float64) (Result, error) {
	pos, k1, err := rk4(f, s.Pos, s.Time, h)
	if err != nil {
		return Result{}, err
	}
	return Result{Pos: pos, Velocity: k1}, nil
}

func rk4(f Func, x dynamo.Vec3, t, h float64) (dynamo.Vec3, dynamo.Vec3, error) {
	k1, err := checked(f(x, t))
	if err != nil {
		return dynamo.Vec3{}, dynamo.Vec3{}, err
	}
	k2, err := checked(f(x.AddScaled(0.5*h, k1), t+0.5*h))
	if err != nil {
		return dynamo.Vec3{}, dynamo.Vec3{}, err
	}
	k3, err := checked(f(x.AddScaled(0.5*h, k2), t+0.5*h))
	if err != nil {
		return dynamo.Vec3{}, dynamo.Vec3{}, err
	}
	k4, err := checked(f(x.AddScaled(h, k3), t+h))
	if err != nil {
		return dynamo.Vec3{}, dynamo.Vec3{}, err
	}

	h6 := h / 6.0
	out := x.AddScaled(h6, k1).AddScaled(2*h6, k2).AddScaled(2*h6, k3).AddScaled(h6, k4)
	return out, k1, nil
}

// AdamsBashforth is the explicit 4-step method. Until three previous
// samples taken at the same step length are available it bootstraps with
// RK4.
type AdamsBashforth struct{}

func NewAdamsBashforth() *AdamsBashforth {
	return &AdamsBashforth{}
}

func (a *AdamsBashforth) Name() string   { return "adams-bashforth" }
func (a *AdamsBashforth) Order() int     { return 4 }
func (a *AdamsBashforth) Adaptive() bool { return false }

func (a *AdamsBashforth) Step(f Func, s State, h float64) (Result, error) {
	hist := s.History
	if s.HistoryStep != h {
		hist = nil
	}

	var (
		pos dynamo.Vec3
		fn  dynamo.Vec3
		err error
	)
	if len(hist) >= 3 {
		fn, err = checked(f(s.Pos, s.Time))
		if err != nil {
			return Result{}, err
		}
		n := len(hist)
		f1, f2, f3 := hist[n-1], hist[n-2], hist[n-3]
		h24 := h / 24.0
		pos = s.Pos.AddScaled(55*h24, fn).AddScaled(-59*h24, f1).AddScaled(37*h24, f2).AddScaled(-9*h24, f3)
	} else {
		pos, fn, err = rk4(f, s.Pos, s.Time, h)
		if err != nil {
			return Result{}, err
		}
	}

	next := make([]dynamo.Vec3, 0, 3)
	if n := len(hist); n > 2 {
		next = append(next, hist[n-2:]...)
	} else {
		next = append(next, hist...)
	}
	next = append(next, fn)

	return Result{Pos: pos, Velocity: fn, History: next, HistoryStep: h}, nil
}

var _ Scheme = (*RK4)(nil)
var _ Scheme = (*AdamsBashforth)(nil)
