package integrators

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string   { return "euler" }
func (e *Euler) Order() int     { return 1 }
func (e *Euler) Adaptive() bool { return false }

func (e *Euler) Step(f Func, s State, h float64) (Result, error) {
	v, err := checked(f(s.Pos, s.Time))
	if err != nil {
		return Result{}, err
	}
	return Result{Pos: s.Pos.AddScaled(h, v), Velocity: v}, nil
}

// Leapfrog drifts half a step, samples there and kicks the full step from
// the start point.
type Leapfrog struct{}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Name() string   { return "leapfrog" }
func (l *Leapfrog) Order() int     { return 2 }
func (l *Leapfrog) Adaptive() bool { return false }

func (l *Leapfrog) Step(f Func, s State, h float64) (Result, error) {
	v0, err := checked(f(s.Pos, s.Time))
	if err != nil {
		return Result{}, err
	}
	half := s.Pos.AddScaled(0.5*h, v0)
	vh, err := checked(f(half, s.Time+0.5*h))
	if err != nil {
		return Result{}, err
	}
	return Result{Pos: s.Pos.AddScaled(h, vh), Velocity: v0}, nil
}

var _ Scheme = (*Euler)(nil)
var _ Scheme = (*Leapfrog)(nil)
