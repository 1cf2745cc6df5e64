// Package seed realizes the initial positions of a run from a geometric
// description.
package seed

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Kind is the seed geometry.
type Kind string

const (
	Point  Kind = "point"
	Points Kind = "points"
	Line   Kind = "line"
	Circle Kind = "circle"
	Plane  Kind = "plane"
	Sphere Kind = "sphere"
	Box    Kind = "box"
)

// Sampling selects regular or random placement.
type Sampling string

const (
	Uniform Sampling = "uniform"
	Random  Sampling = "random"
)

// Region selects the surface or the volume of a closed shape.
type Region string

const (
	Boundary Region = "boundary"
	Interior Region = "interior"
)

var ErrNoSeeds = errors.New("seed: source produced no seeds")

// Seed is one realized start position.
type Seed struct {
	ID       int         `json:"id"`
	Position dynamo.Vec3 `json:"position"`
}

// Source describes the seeds of a run. Only the fields of its Kind are
// read.
type Source struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	Sampling Sampling `json:"sampling" yaml:"sampling"`
	Region   Region   `json:"region" yaml:"region"`

	Points []dynamo.Vec3 `json:"points,omitempty" yaml:"points,omitempty"`

	Start dynamo.Vec3 `json:"start" yaml:"start"`
	End   dynamo.Vec3 `json:"end" yaml:"end"`

	Center dynamo.Vec3 `json:"center" yaml:"center"`
	Normal dynamo.Vec3 `json:"normal" yaml:"normal"`
	Radius float64     `json:"radius" yaml:"radius"`
	Width  float64     `json:"width" yaml:"width"`
	Height float64     `json:"height" yaml:"height"`

	Bounds dynamo.Box `json:"bounds" yaml:"bounds"`

	// Counts gives samples per axis; Density (samples per unit length)
	// is used when Counts is zero.
	Counts     [3]int  `json:"counts" yaml:"counts"`
	Density    float64 `json:"density" yaml:"density"`
	RandomSeed uint64  `json:"random_seed" yaml:"random_seed"`
}

// Generate realizes the seeds. It is deterministic for a given Source.
func (s Source) Generate() ([]Seed, error) {
	var (
		pts []dynamo.Vec3
		err error
	)
	switch s.Kind {
	case Point:
		if len(s.Points) > 0 {
			pts = s.Points[:1]
		} else {
			pts = []dynamo.Vec3{s.Center}
		}
	case Points:
		pts = s.Points
	case Line:
		pts, err = s.line()
	case Circle:
		pts, err = s.circle()
	case Plane:
		pts, err = s.plane()
	case Sphere:
		pts, err = s.sphere()
	case Box:
		pts, err = s.box()
	default:
		return nil, fmt.Errorf("unknown seed kind: %q", s.Kind)
	}
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, ErrNoSeeds
	}

	seeds := make([]Seed, len(pts))
	for i, p := range pts {
		if !p.IsValid() {
			return nil, fmt.Errorf("seed %d: invalid position %v", i, p)
		}
		seeds[i] = Seed{ID: i, Position: p}
	}
	return seeds, nil
}

// GridDims returns the node counts of a uniform interior box source, the
// only layout finite-difference analyses accept.
func (s Source) GridDims() ([3]int, error) {
	if s.Kind != Box || s.sampling() != Uniform || s.region() != Interior {
		return [3]int{}, fmt.Errorf("seed grid requires a uniform interior box, got %s/%s/%s", s.Kind, s.sampling(), s.region())
	}
	return s.axisCounts(s.Bounds.Size())
}

func (s Source) sampling() Sampling {
	if s.Sampling == "" {
		return Uniform
	}
	return s.Sampling
}

func (s Source) region() Region {
	if s.Region == "" {
		return Interior
	}
	return s.Region
}

func (s Source) rng() *rand.Rand {
	return rand.New(rand.NewPCG(s.RandomSeed, s.RandomSeed^0x9e3779b97f4a7c15))
}

// axisCounts resolves the per-axis counts for extents.
func (s Source) axisCounts(extent dynamo.Vec3) ([3]int, error) {
	var n [3]int
	for a := 0; a < 3; a++ {
		switch {
		case s.Counts[a] > 0:
			n[a] = s.Counts[a]
		case extent[a] == 0:
			n[a] = 1
		case s.Density > 0:
			n[a] = int(math.Ceil(extent[a]*s.Density)) + 1
		default:
			return n, fmt.Errorf("seed %s: axis %d needs a count or a density", s.Kind, a)
		}
	}
	return n, nil
}

func (s Source) count(length float64) (int, error) {
	if s.Counts[0] > 0 {
		return s.Counts[0], nil
	}
	if s.Density > 0 && length > 0 {
		return int(math.Ceil(length*s.Density)) + 1, nil
	}
	return 0, fmt.Errorf("seed %s: count or density required", s.Kind)
}

func lerp(n, i int) float64 {
	if n <= 1 {
		return 0.5
	}
	return float64(i) / float64(n-1)
}

func (s Source) line() ([]dynamo.Vec3, error) {
	d := s.End.Sub(s.Start)
	n, err := s.count(d.Norm())
	if err != nil {
		return nil, err
	}
	pts := make([]dynamo.Vec3, n)
	if s.sampling() == Random {
		u := distuv.Uniform{Min: 0, Max: 1, Src: s.rng()}
		for i := range pts {
			pts[i] = s.Start.AddScaled(u.Rand(), d)
		}
		return pts, nil
	}
	for i := range pts {
		pts[i] = s.Start.AddScaled(lerp(n, i), d)
	}
	return pts, nil
}

// basis returns two unit vectors spanning the plane normal to n.
func basis(n dynamo.Vec3) (dynamo.Vec3, dynamo.Vec3, error) {
	l := n.Norm()
	if l == 0 {
		return dynamo.Vec3{}, dynamo.Vec3{}, fmt.Errorf("seed: zero normal")
	}
	n = n.Scale(1 / l)
	ref := dynamo.Vec3{1, 0, 0}
	if math.Abs(n[0]) > 0.9 {
		ref = dynamo.Vec3{0, 1, 0}
	}
	u := ref.Sub(n.Scale(ref.Dot(n)))
	u = u.Scale(1 / u.Norm())
	return u, n.Cross(u), nil
}

func (s Source) circle() ([]dynamo.Vec3, error) {
	if s.Radius <= 0 {
		return nil, fmt.Errorf("seed circle: radius must be positive")
	}
	u, v, err := basis(s.Normal)
	if err != nil {
		return nil, err
	}
	at := func(r, theta float64) dynamo.Vec3 {
		sin, cos := math.Sincos(theta)
		return s.Center.AddScaled(r*cos, u).AddScaled(r*sin, v)
	}

	random := s.sampling() == Random
	if s.region() == Boundary {
		n, err := s.count(2 * math.Pi * s.Radius)
		if err != nil {
			return nil, err
		}
		pts := make([]dynamo.Vec3, n)
		ang := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: s.rng()}
		for i := range pts {
			theta := 2 * math.Pi * float64(i) / float64(n)
			if random {
				theta = ang.Rand()
			}
			pts[i] = at(s.Radius, theta)
		}
		return pts, nil
	}

	n, err := s.count(2 * s.Radius)
	if err != nil {
		return nil, err
	}
	if random {
		src := s.rng()
		unit := distuv.Uniform{Min: 0, Max: 1, Src: src}
		pts := make([]dynamo.Vec3, n)
		for i := range pts {
			pts[i] = at(s.Radius*math.Sqrt(unit.Rand()), 2*math.Pi*unit.Rand())
		}
		return pts, nil
	}
	var pts []dynamo.Vec3
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x := s.Radius * (2*lerp(n, i) - 1)
			y := s.Radius * (2*lerp(n, j) - 1)
			if x*x+y*y <= s.Radius*s.Radius {
				pts = append(pts, s.Center.AddScaled(x, u).AddScaled(y, v))
			}
		}
	}
	return pts, nil
}

func (s Source) plane() ([]dynamo.Vec3, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("seed plane: width and height must be positive")
	}
	u, v, err := basis(s.Normal)
	if err != nil {
		return nil, err
	}
	at := func(fu, fv float64) dynamo.Vec3 {
		return s.Center.AddScaled((fu-0.5)*s.Width, u).AddScaled((fv-0.5)*s.Height, v)
	}
	counts, err := s.axisCounts(dynamo.Vec3{s.Width, s.Height, 0})
	if err != nil {
		return nil, err
	}
	nu, nv := counts[0], counts[1]

	if s.sampling() == Random {
		unit := distuv.Uniform{Min: 0, Max: 1, Src: s.rng()}
		pts := make([]dynamo.Vec3, nu*nv)
		for i := range pts {
			fu, fv := unit.Rand(), unit.Rand()
			if s.region() == Boundary {
				fu, fv = perimeter(fu, s.Width, s.Height)
			}
			pts[i] = at(fu, fv)
		}
		return pts, nil
	}

	var pts []dynamo.Vec3
	for j := 0; j < nv; j++ {
		for i := 0; i < nu; i++ {
			edge := i == 0 || j == 0 || i == nu-1 || j == nv-1
			if s.region() == Boundary && !edge {
				continue
			}
			pts = append(pts, at(lerp(nu, i), lerp(nv, j)))
		}
	}
	return pts, nil
}

// perimeter maps t in [0,1) to a point on the rectangle outline,
// proportionally to edge length.
func perimeter(t, w, h float64) (float64, float64) {
	d := t * 2 * (w + h)
	switch {
	case d < w:
		return d / w, 0
	case d < w+h:
		return 1, (d - w) / h
	case d < 2*w+h:
		return 1 - (d-w-h)/w, 1
	default:
		return 0, 1 - (d-2*w-h)/h
	}
}

func (s Source) sphere() ([]dynamo.Vec3, error) {
	if s.Radius <= 0 {
		return nil, fmt.Errorf("seed sphere: radius must be positive")
	}
	random := s.sampling() == Random

	if s.region() == Boundary {
		n, err := s.count(math.Pi * s.Radius)
		if err != nil {
			return nil, err
		}
		pts := make([]dynamo.Vec3, n)
		if random {
			src := s.rng()
			norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
			for i := range pts {
				d := dynamo.Vec3{norm.Rand(), norm.Rand(), norm.Rand()}
				for d.Norm() == 0 {
					d = dynamo.Vec3{norm.Rand(), norm.Rand(), norm.Rand()}
				}
				pts[i] = s.Center.AddScaled(s.Radius/d.Norm(), d)
			}
			return pts, nil
		}
		// Fibonacci lattice.
		golden := math.Pi * (3 - math.Sqrt(5))
		for i := range pts {
			z := 1 - 2*(float64(i)+0.5)/float64(n)
			r := math.Sqrt(1 - z*z)
			sin, cos := math.Sincos(golden * float64(i))
			pts[i] = s.Center.Add(dynamo.Vec3{r * cos, r * sin, z}.Scale(s.Radius))
		}
		return pts, nil
	}

	n, err := s.count(2 * s.Radius)
	if err != nil {
		return nil, err
	}
	if random {
		src := s.rng()
		norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
		unit := distuv.Uniform{Min: 0, Max: 1, Src: src}
		pts := make([]dynamo.Vec3, n)
		for i := range pts {
			d := dynamo.Vec3{norm.Rand(), norm.Rand(), norm.Rand()}
			for d.Norm() == 0 {
				d = dynamo.Vec3{norm.Rand(), norm.Rand(), norm.Rand()}
			}
			r := s.Radius * math.Cbrt(unit.Rand())
			pts[i] = s.Center.AddScaled(r/d.Norm(), d)
		}
		return pts, nil
	}
	var pts []dynamo.Vec3
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				off := dynamo.Vec3{2*lerp(n, i) - 1, 2*lerp(n, j) - 1, 2*lerp(n, k) - 1}.Scale(s.Radius)
				if off.Norm() <= s.Radius {
					pts = append(pts, s.Center.Add(off))
				}
			}
		}
	}
	return pts, nil
}

func (s Source) box() ([]dynamo.Vec3, error) {
	b := s.Bounds
	if !b.Valid() {
		return nil, fmt.Errorf("seed box: invalid bounds")
	}
	size := b.Size()
	n, err := s.axisCounts(size)
	if err != nil {
		return nil, err
	}

	if s.sampling() == Random {
		src := s.rng()
		unit := distuv.Uniform{Min: 0, Max: 1, Src: src}
		total := n[0] * n[1] * n[2]
		pts := make([]dynamo.Vec3, total)
		for i := range pts {
			f := dynamo.Vec3{unit.Rand(), unit.Rand(), unit.Rand()}
			if s.region() == Boundary {
				// Snap one random axis to a face.
				axis := int(unit.Rand() * 3)
				if axis > 2 {
					axis = 2
				}
				f[axis] = math.Round(f[axis])
			}
			pts[i] = dynamo.Vec3{
				b.Min[0] + f[0]*size[0],
				b.Min[1] + f[1]*size[1],
				b.Min[2] + f[2]*size[2],
			}
		}
		return pts, nil
	}

	var pts []dynamo.Vec3
	for k := 0; k < n[2]; k++ {
		for j := 0; j < n[1]; j++ {
			for i := 0; i < n[0]; i++ {
				onFace := (n[0] > 1 && (i == 0 || i == n[0]-1)) ||
					(n[1] > 1 && (j == 0 || j == n[1]-1)) ||
					(n[2] > 1 && (k == 0 || k == n[2]-1))
				if s.region() == Boundary && !onFace {
					continue
				}
				pts = append(pts, dynamo.Vec3{
					b.Min[0] + gridFrac(n[0], i)*size[0],
					b.Min[1] + gridFrac(n[1], j)*size[1],
					b.Min[2] + gridFrac(n[2], k)*size[2],
				})
			}
		}
	}
	return pts, nil
}

// gridFrac places a single node on the lower face so that flat boxes
// seed in their plane.
func gridFrac(n, i int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}
