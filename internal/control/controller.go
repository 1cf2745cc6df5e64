package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/integrators"
	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/particle"
)

const (
	safety    = 0.9
	minScale  = 0.2
	maxScale  = 10.0
	maxBisect = 32

	// Consecutive positive stiffness tests before a warning, and the run
	// of negative tests that clears the count.
	stiffRun    = 15
	nonStiffRun = 6

	// Component magnitude ratio treated as stiff at the minimum step.
	stiffSpread = 1e8

	circlingFraction = 0.01

	// A face closer than this fraction of the step (or of MaxStep, if
	// smaller) is crossed with an Euler hop instead of another step.
	hopFraction = 1e-3
	rayBisect   = 64

	// A point can sit on at most three faces of a box, so a longer run
	// of hops means the particle is bouncing.
	maxCrossings = 3
)

// Settings are the per-run step parameters.
type Settings struct {
	AbsTol       float64
	RelTol       float64
	MinStep      float64
	MaxStep      float64
	LimitMaxStep bool
	// MaxTime bounds the elapsed integration time; zero disables it.
	MaxTime             float64
	SpeedCutoff         float64
	CriticalPointWindow int
}

// Outcome is the state a particle is left in by Advance.
type Outcome int

const (
	Stepped Outcome = iota
	AwaitingDomain
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Stepped:
		return "stepped"
	case AwaitingDomain:
		return "awaiting_domain"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Report describes one call to Advance.
type Report struct {
	Outcome Outcome
	// Probe is a point just past the face an AwaitingDomain step ran
	// into, reached by an Euler hop of ProbeStep from the particle.
	Probe      dynamo.Vec3
	ProbeStep  float64
	Rejected   int
	Bisections int
	Err        error
}

// Controller advances particles with one scheme.
type Controller struct {
	scheme   integrators.Scheme
	set      Settings
	warnings *dynamo.Warnings
}

func New(scheme integrators.Scheme, set Settings, warnings *dynamo.Warnings) *Controller {
	if warnings == nil {
		warnings = dynamo.NewWarnings()
	}
	return &Controller{scheme: scheme, set: set, warnings: warnings}
}

func (c *Controller) Scheme() integrators.Scheme { return c.scheme }

// Tolerance returns max_i e_i / max(abs, rel·|y_i|). A step is acceptable
// when the ratio is at most one. y is the state vector, here the position
// after the step, not the field velocity.
func Tolerance(errEst, y dynamo.Vec3, abs, rel float64) float64 {
	ratio := 0.0
	for i := 0; i < 3; i++ {
		bound := math.Max(abs, rel*math.Abs(y[i]))
		ratio = math.Max(ratio, math.Abs(errEst[i])/bound)
	}
	return ratio
}

// Grow returns the step scale after an accepted step.
func Grow(ratio float64) float64 {
	if ratio <= 0 {
		return maxScale
	}
	return math.Min(maxScale, math.Max(minScale, safety*math.Pow(ratio, -0.2)))
}

// Shrink returns the step scale after a rejected step.
func Shrink(ratio float64) float64 {
	return math.Max(minScale, safety*math.Pow(ratio, -0.25))
}

// InitialStep returns the signed first step of a particle.
func (c *Controller) InitialStep(dir dynamo.Direction) float64 {
	return dir.Sign() * c.set.MaxStep
}

// Advance attempts one accepted step of p through f.
func (c *Controller) Advance(p *particle.Particle, f integrators.Func) Report {
	var rep Report
	if !p.IsActive() {
		rep.Outcome = Failed
		rep.Err = fmt.Errorf("advance terminated particle %d", p.ID)
		return rep
	}

	sign := p.Direction.Sign()
	adaptive := c.scheme.Adaptive()

	h := p.StepLength
	if !adaptive || h == 0 {
		h = sign * c.set.MaxStep
	}
	h, clamped := c.clampToMaxTime(p, h)
	clipped := false

	for {
		res, err := c.scheme.Step(f, integrators.State{
			Pos:         p.Position,
			Time:        p.Time,
			History:     p.History,
			HistoryStep: p.HistoryStep,
		}, h)

		if errors.Is(err, dynamo.ErrNotResident) {
			if !clipped {
				clipped = true
				if in, out, v, ok := c.crossing(p, f, h); ok {
					if math.Abs(out) <= c.hopLength(h) || math.Abs(in) < c.set.MinStep {
						rep.Outcome = AwaitingDomain
						rep.Probe = p.Position.AddScaled(out, v)
						rep.ProbeStep = out
						return rep
					}
					h = in
					clamped = false
					rep.Bisections++
					continue
				}
			}
			half := h / 2
			if rep.Bisections < maxBisect && math.Abs(half) >= c.set.MinStep {
				h = half
				clamped = false
				rep.Bisections++
				continue
			}
			rep.Outcome = AwaitingDomain
			rep.Probe, rep.ProbeStep = c.probe(p, f, h)
			return rep
		}
		if err != nil {
			rep.Outcome = Failed
			rep.Err = err
			return rep
		}

		next := sign * c.set.MaxStep
		if adaptive && res.ErrEst != nil {
			c.trackStiffness(p, res.Stiff)

			ratio := Tolerance(*res.ErrEst, res.Pos, c.set.AbsTol, c.set.RelTol)
			if ratio > 1 {
				metrics.StepsTotal.WithLabelValues(c.scheme.Name(), "rejected").Inc()
				rep.Rejected++

				smaller := h * Shrink(ratio)
				if math.Abs(smaller) >= c.set.MinStep {
					h = smaller
					clamped = false
					continue
				}
				if math.Abs(h) > c.set.MinStep {
					h = sign * c.set.MinStep
					clamped = false
					continue
				}
				if !stiffComponents(res.Velocity) {
					rep.Outcome = Failed
					rep.Err = fmt.Errorf("%w: |h|=%g at t=%g", dynamo.ErrStepTooSmall, math.Abs(h), p.Time)
					return rep
				}
				c.warnOnce(p, particle.FlagStiff, dynamo.WarnStiffness,
					fmt.Sprintf("tolerance not met at minimum step %g near %v", c.set.MinStep, p.Position))
				next = h
			} else {
				next = h * Grow(ratio)
				if c.set.LimitMaxStep && math.Abs(next) > c.set.MaxStep {
					next = sign * c.set.MaxStep
				}
				if math.Abs(next) < c.set.MinStep {
					next = sign * c.set.MinStep
				}
			}
		}

		c.accept(p, f, res, h, clamped)
		p.StepLength = next
		metrics.StepsTotal.WithLabelValues(c.scheme.Name(), "accepted").Inc()
		rep.Outcome = Stepped
		return rep
	}
}

func (c *Controller) accept(p *particle.Particle, f integrators.Func, res integrators.Result, h float64, clamped bool) {
	prev := p.Position
	p.Position = res.Pos
	if clamped {
		p.Time = p.StartTime + p.Direction.Sign()*c.set.MaxTime
	} else {
		p.Time += h
	}
	step := res.Pos.Sub(prev).Norm()
	p.ArcLength += step
	p.Steps++
	p.Crossings = 0
	p.History = res.History
	p.HistoryStep = res.HistoryStep

	speed := res.Velocity.Norm()
	if v, err := f(p.Position, p.Time); err == nil && v.IsValid() {
		speed = v.Norm()
	}
	p.Speed = speed

	c.trackWindow(p, step)
}

func (c *Controller) clampToMaxTime(p *particle.Particle, h float64) (float64, bool) {
	if c.set.MaxTime <= 0 {
		return h, false
	}
	remaining := c.set.MaxTime - p.Elapsed()
	if remaining > 0 && math.Abs(h) >= remaining {
		return math.Copysign(remaining, h), true
	}
	return h, false
}

// probe returns a point just beyond the boundary the step ran into and
// the step that reaches it.
func (c *Controller) probe(p *particle.Particle, f integrators.Func, h float64) (dynamo.Vec3, float64) {
	v, err := f(p.Position, p.Time)
	if err != nil || !v.IsValid() {
		return p.Position, 0
	}
	return p.Position.AddScaled(h, v), h
}

// crossing bisects the Euler ray of p over h for the face of the resident
// region. in is the longest resident step found and out the shortest
// non-resident one. ok is false when the ray end is still resident.
func (c *Controller) crossing(p *particle.Particle, f integrators.Func, h float64) (in, out float64, v dynamo.Vec3, ok bool) {
	v, err := f(p.Position, p.Time)
	if err != nil || !v.IsValid() {
		return 0, 0, v, false
	}
	if _, err := f(p.Position.AddScaled(h, v), p.Time+h); !errors.Is(err, dynamo.ErrNotResident) {
		return 0, 0, v, false
	}
	tol := c.hopLength(h) / 4
	in, out = 0, h
	for i := 0; i < rayBisect && math.Abs(out-in) > tol; i++ {
		mid := in + (out-in)/2
		_, err := f(p.Position.AddScaled(mid, v), p.Time+mid)
		switch {
		case err == nil:
			in = mid
		case errors.Is(err, dynamo.ErrNotResident):
			out = mid
		default:
			return 0, 0, v, false
		}
	}
	return in, out, v, true
}

// hopLength is the longest Euler hop taken across a face.
func (c *Controller) hopLength(h float64) float64 {
	reach := math.Abs(h)
	if c.set.MaxStep > 0 {
		reach = math.Min(reach, c.set.MaxStep)
	}
	return hopFraction * reach
}

// Cross moves p onto the probe of an AwaitingDomain report once the
// caller has handed p to the domain containing it. It fails with
// ErrNoProgress when p hops more than maxCrossings faces in a row.
func (c *Controller) Cross(p *particle.Particle, f integrators.Func, rep Report) error {
	p.Crossings++
	if p.Crossings > maxCrossings {
		return fmt.Errorf("%w: %d hops near %v", dynamo.ErrNoProgress, p.Crossings, p.Position)
	}
	prev := p.Position
	p.Position = rep.Probe
	p.Time += rep.ProbeStep
	p.ArcLength += rep.Probe.Sub(prev).Norm()
	p.Steps++
	p.ResetHistory()
	if v, err := f(p.Position, p.Time); err == nil && v.IsValid() {
		p.Speed = v.Norm()
	}
	return nil
}

func (c *Controller) trackStiffness(p *particle.Particle, stiff bool) {
	if !stiff {
		p.NonStiffCount++
		if p.NonStiffCount >= nonStiffRun {
			p.StiffCount = 0
		}
		return
	}
	p.NonStiffCount = 0
	p.StiffCount++
	if p.StiffCount >= stiffRun {
		c.warnOnce(p, particle.FlagStiff, dynamo.WarnStiffness,
			fmt.Sprintf("problem appears stiff near %v", p.Position))
	}
}

func (c *Controller) trackWindow(p *particle.Particle, step float64) {
	w := c.set.CriticalPointWindow
	if w <= 0 {
		return
	}
	p.WindowArc += step
	p.WindowSteps++
	if p.Speed < c.set.SpeedCutoff {
		p.WindowSlow = true
	}
	if p.WindowSteps < w {
		return
	}

	disp := p.Position.Sub(p.WindowOrigin).Norm()
	if p.WindowArc > 0 && disp < circlingFraction*p.WindowArc && !p.WindowSlow {
		c.warnOnce(p, particle.FlagCircling, dynamo.WarnCriticalPoint,
			fmt.Sprintf("circling without progress near %v", p.Position))
	}
	p.WindowOrigin = p.Position
	p.WindowArc = 0
	p.WindowSteps = 0
	p.WindowSlow = false
}

func (c *Controller) warnOnce(p *particle.Particle, flag particle.Flags, kind dynamo.WarningKind, msg string) {
	if p.Flags&flag != 0 {
		return
	}
	p.Flags |= flag
	c.warnings.Add(dynamo.Warning{Kind: kind, Particle: p.ID, Message: msg})
}

func stiffComponents(v dynamo.Vec3) bool {
	lo, hi := math.Inf(1), 0.0
	for _, c := range v {
		a := math.Abs(c)
		if a == 0 {
			continue
		}
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	return hi > 0 && hi/lo >= stiffSpread
}
