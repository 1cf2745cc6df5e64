package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/flowline/internal/particle"
)

var ErrTooShort = errors.New("flowline: trajectory too short for winding analysis")

// Axis is the magnetic axis, a circle of radius R at height Z.
type Axis struct {
	R float64 `json:"r" yaml:"r"`
	Z float64 `json:"z" yaml:"z"`
}

// Rational is p/q in lowest terms.
type Rational struct {
	P int `json:"p"`
	Q int `json:"q"`
}

func (r Rational) Float() float64 { return float64(r.P) / float64(r.Q) }

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.P, r.Q) }

// Class is the winding classification of a field line.
type Class string

const (
	RationalClass   Class = "rational"
	IrrationalClass Class = "irrational"
)

// WindingOptions tunes the rational classification.
type WindingOptions struct {
	Phi            float64 // toroidal angle of the puncture plane
	MaxDenominator int
	Tolerance      float64 // distance between period-q punctures
	Threshold      float64 // minimum confidence for a rational class
}

func DefaultWindingOptions() WindingOptions {
	return WindingOptions{MaxDenominator: 20, Tolerance: 1e-3, Threshold: 0.9}
}

// WindingResult summarizes one field line.
type WindingResult struct {
	ParticleID int64    `json:"particle_id"`
	SeedID     int      `json:"seed_id"`
	Iota       float64  `json:"iota"`
	Q          float64  `json:"q"`
	Transits   float64  `json:"transits"`
	Ratio      Rational `json:"ratio"`
	Confidence float64  `json:"confidence"`
	Class      Class    `json:"class"`
}

// Winding measures the rotational transform ι of tr about axis as total
// poloidal over total toroidal angle, then classifies it by how well the
// punctures repeat with the period of its best rational approximation.
func Winding(tr *particle.Trajectory, axis Axis, opts WindingOptions) (WindingResult, error) {
	res := WindingResult{ParticleID: tr.ParticleID, SeedID: tr.SeedID}
	if tr.Len() < 2 {
		return res, ErrTooShort
	}
	if opts.MaxDenominator < 1 {
		return res, fmt.Errorf("winding: max denominator must be positive, got %d", opts.MaxDenominator)
	}

	var phi, theta float64
	prevPhi := toroidalAngle(tr.Points[0].Position)
	prevTheta := poloidalAngle(tr.Points[0].Position[0], tr.Points[0].Position[1], tr.Points[0].Position[2], axis)
	for _, pt := range tr.Points[1:] {
		p := pt.Position
		ph := toroidalAngle(p)
		th := poloidalAngle(p[0], p[1], p[2], axis)
		phi += wrapAngle(ph - prevPhi)
		theta += wrapAngle(th - prevTheta)
		prevPhi, prevTheta = ph, th
	}

	res.Transits = math.Abs(phi) / (2 * math.Pi)
	if res.Transits < 1 {
		return res, fmt.Errorf("%w: %.2f toroidal transits", ErrTooShort, res.Transits)
	}
	res.Iota = theta / phi
	res.Q = 1 / res.Iota
	res.Ratio = Approximate(math.Abs(res.Iota), opts.MaxDenominator)

	ps := Punctures([]*particle.Trajectory{tr}, ToroidalSection{Phi: opts.Phi})
	res.Confidence = periodicity(ps, res.Ratio.Q, opts.Tolerance)
	res.Class = IrrationalClass
	if res.Confidence >= opts.Threshold {
		res.Class = RationalClass
	}
	return res, nil
}

func poloidalAngle(x, y, z float64, axis Axis) float64 {
	return math.Atan2(z-axis.Z, math.Hypot(x, y)-axis.R)
}

// periodicity is the fraction of punctures whose period-q successor lies
// within tol.
func periodicity(ps []Puncture, q int, tol float64) float64 {
	if q < 1 || len(ps) <= q {
		return 0
	}
	hits := 0
	for i := 0; i+q < len(ps); i++ {
		if math.Hypot(ps[i+q].U-ps[i].U, ps[i+q].V-ps[i].V) <= tol {
			hits++
		}
	}
	return float64(hits) / float64(len(ps)-q)
}

// Approximate returns the last continued-fraction convergent of x whose
// denominator does not exceed maxDen. x must be non-negative.
func Approximate(x float64, maxDen int) Rational {
	whole := math.Floor(x)
	// h/k are successive convergents.
	h0, h1 := 1, int(whole)
	k0, k1 := 0, 1
	frac := x - whole
	for frac > 1e-12 {
		inv := 1 / frac
		a := math.Floor(inv)
		if a > float64(maxDen) {
			break
		}
		h2 := int(a)*h1 + h0
		k2 := int(a)*k1 + k0
		if k2 > maxDen {
			break
		}
		h0, h1 = h1, h2
		k0, k1 = k1, k2
		frac = inv - a
	}
	return Rational{P: h1, Q: k1}
}
