package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var ErrNotBracketed = errors.New("flowline: rational surface not bracketed")

// SafetyFactor traces a field line from minor radius r and returns its
// safety factor q.
type SafetyFactor func(ctx context.Context, r float64) (float64, error)

// Surface is a located rational surface.
type Surface struct {
	Target     Rational `json:"target"`
	Radius     float64  `json:"radius"`
	Q          float64  `json:"q"`
	Iterations int      `json:"iterations"`
}

// RefineRationalSurface finds r in [lo, hi] with q(r) = target.P/target.Q
// by bracketed secant steps (the Illinois variant of regula falsi),
// falling back to bisection when a step leaves the bracket. It stops when
// |q(r) - target| < tol.
func RefineRationalSurface(ctx context.Context, q SafetyFactor, target Rational, lo, hi, tol float64, maxIter int) (Surface, error) {
	s := Surface{Target: target}
	if target.Q == 0 {
		return s, fmt.Errorf("rational surface: zero denominator")
	}
	if lo >= hi || tol <= 0 || maxIter < 1 {
		return s, fmt.Errorf("rational surface: invalid search [%g, %g] tol %g iterations %d", lo, hi, tol, maxIter)
	}
	want := target.Float()

	g := func(r float64) (float64, float64, error) {
		v, err := q(ctx, r)
		if err != nil {
			return 0, 0, fmt.Errorf("rational surface at r=%g: %w", r, err)
		}
		return v - want, v, nil
	}

	glo, qlo, err := g(lo)
	if err != nil {
		return s, err
	}
	ghi, qhi, err := g(hi)
	if err != nil {
		return s, err
	}
	switch {
	case math.Abs(glo) < tol:
		s.Radius, s.Q = lo, qlo
		return s, nil
	case math.Abs(ghi) < tol:
		s.Radius, s.Q = hi, qhi
		return s, nil
	case glo*ghi > 0:
		return s, fmt.Errorf("%w: q(%g)=%g and q(%g)=%g on the same side of %g", ErrNotBracketed, lo, qlo, hi, qhi, want)
	}

	side := 0
	for s.Iterations < maxIter {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		s.Iterations++

		r := hi - ghi*(hi-lo)/(ghi-glo)
		if !(r > lo && r < hi) {
			r = 0.5 * (lo + hi)
		}
		gr, qr, err := g(r)
		if err != nil {
			return s, err
		}
		s.Radius, s.Q = r, qr
		if math.Abs(gr) < tol {
			return s, nil
		}
		if gr*glo < 0 {
			hi, ghi = r, gr
			if side == -1 {
				glo /= 2
			}
			side = -1
		} else {
			lo, glo = r, gr
			if side == 1 {
				ghi /= 2
			}
			side = 1
		}
	}
	return s, fmt.Errorf("rational surface %s: no convergence after %d iterations (q=%g)", target, maxIter, s.Q)
}

// ProfilePoint is q sampled at one radius.
type ProfilePoint struct {
	Radius float64 `json:"radius"`
	Q      float64 `json:"q"`
}

// QProfile samples q at steps radii evenly spaced over [lo, hi].
func QProfile(ctx context.Context, q SafetyFactor, lo, hi float64, steps int) ([]ProfilePoint, error) {
	if steps < 2 {
		steps = 2
	}
	dr := (hi - lo) / float64(steps-1)
	out := make([]ProfilePoint, 0, steps)
	for i := 0; i < steps; i++ {
		r := lo + float64(i)*dr
		v, err := q(ctx, r)
		if err != nil {
			return out, err
		}
		out = append(out, ProfilePoint{Radius: r, Q: v})
	}
	return out, nil
}
