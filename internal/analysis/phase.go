package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/particle"
)

// Puncture is one crossing of a trajectory through a section.
type Puncture struct {
	ParticleID int64       `json:"particle_id"`
	SeedID     int         `json:"seed_id"`
	Index      int         `json:"index"`
	Position   dynamo.Vec3 `json:"position"`
	Time       float64     `json:"time"`
	// U, V are the in-section coordinates: (R, Z) for a toroidal section,
	// plane basis coordinates for a plane section.
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Section detects crossings between consecutive trajectory points.
type Section interface {
	Name() string
	// Crossing reports whether the segment a→b crosses the section in its
	// positive sense and at which fraction of the segment.
	Crossing(a, b dynamo.Vec3) (float64, bool)
	// Coords projects a point of the section to its 2D coordinates.
	Coords(p dynamo.Vec3) (float64, float64)
}

// PlaneSection is the plane through Point with unit normal Normal.
// Crossings count when the signed distance goes from negative to
// non-negative.
type PlaneSection struct {
	Point  dynamo.Vec3
	Normal dynamo.Vec3

	u, v dynamo.Vec3
}

func NewPlaneSection(point, normal dynamo.Vec3) (*PlaneSection, error) {
	n := normal.Norm()
	if n == 0 || !normal.IsValid() {
		return nil, fmt.Errorf("plane section: invalid normal %v", normal)
	}
	normal = normal.Scale(1 / n)
	helper := dynamo.Vec3{1, 0, 0}
	if math.Abs(normal[0]) > 0.9 {
		helper = dynamo.Vec3{0, 1, 0}
	}
	u := helper.Sub(normal.Scale(helper.Dot(normal)))
	u = u.Scale(1 / u.Norm())
	return &PlaneSection{Point: point, Normal: normal, u: u, v: normal.Cross(u)}, nil
}

func (s *PlaneSection) Name() string { return "plane" }

func (s *PlaneSection) Crossing(a, b dynamo.Vec3) (float64, bool) {
	da := a.Sub(s.Point).Dot(s.Normal)
	db := b.Sub(s.Point).Dot(s.Normal)
	if da >= 0 || db < 0 {
		return 0, false
	}
	return da / (da - db), true
}

func (s *PlaneSection) Coords(p dynamo.Vec3) (float64, float64) {
	d := p.Sub(s.Point)
	return d.Dot(s.u), d.Dot(s.v)
}

// ToroidalSection is the half plane φ = Phi about the z axis, crossed in
// the direction of increasing φ.
type ToroidalSection struct {
	Phi float64
}

func (s ToroidalSection) Name() string { return "toroidal" }

func (s ToroidalSection) Crossing(a, b dynamo.Vec3) (float64, bool) {
	ra := wrapAngle(toroidalAngle(a) - s.Phi)
	dphi := wrapAngle(toroidalAngle(b) - toroidalAngle(a))
	if dphi <= 0 || ra >= 0 || ra+dphi < 0 {
		return 0, false
	}
	return -ra / dphi, true
}

func (s ToroidalSection) Coords(p dynamo.Vec3) (float64, float64) {
	return math.Hypot(p[0], p[1]), p[2]
}

func toroidalAngle(p dynamo.Vec3) float64 {
	return math.Atan2(p[1], p[0])
}

// wrapAngle maps a to (-π, π].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Punctures collects the crossings of every trajectory through sec,
// ordered by particle id and crossing index.
func Punctures(trs []*particle.Trajectory, sec Section) []Puncture {
	var out []Puncture
	for _, tr := range trs {
		n := 0
		for i := 1; i < len(tr.Points); i++ {
			a, b := tr.Points[i-1], tr.Points[i]
			frac, ok := sec.Crossing(a.Position, b.Position)
			if !ok {
				continue
			}
			pos := a.Position.AddScaled(frac, b.Position.Sub(a.Position))
			u, v := sec.Coords(pos)
			out = append(out, Puncture{
				ParticleID: tr.ParticleID,
				SeedID:     tr.SeedID,
				Index:      n,
				Position:   pos,
				Time:       a.Time + frac*(b.Time-a.Time),
				U:          u,
				V:          v,
			})
			n++
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ParticleID != out[j].ParticleID {
			return out[i].ParticleID < out[j].ParticleID
		}
		return out[i].Index < out[j].Index
	})
	return out
}
