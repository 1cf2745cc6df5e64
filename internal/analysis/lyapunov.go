package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/particle"
)

// ErrIncomplete is returned when a grid analysis is missing trajectories.
var ErrIncomplete = errors.New("flowline: incomplete seed grid")

// Measure selects the denominator of the exponent.
type Measure string

const (
	// ByTime divides by elapsed time (FTLE).
	ByTime Measure = "ftle"
	// ByDistance divides by arc length (FDLE).
	ByDistance Measure = "fdle"
	// BySize divides by elapsed time of trajectories stopped at a
	// separation size (FSLE).
	BySize Measure = "fsle"
)

func ParseMeasure(s string) (Measure, error) {
	switch m := Measure(s); m {
	case ByTime, ByDistance, BySize:
		return m, nil
	case "":
		return ByTime, nil
	}
	return "", fmt.Errorf("unknown lyapunov measure: %q", s)
}

// FTLEField is a scalar field over the seed grid, x fastest.
type FTLEField struct {
	Measure Measure
	Dims    [3]int
	Origins []dynamo.Vec3
	Values  []float64
}

// At returns the value of grid node (i, j, k).
func (f *FTLEField) At(i, j, k int) float64 {
	return f.Values[f.index(i, j, k)]
}

func (f *FTLEField) index(i, j, k int) int {
	return (k*f.Dims[1]+j)*f.Dims[0] + i
}

// Max returns the largest finite exponent, or 0 for an empty field.
func (f *FTLEField) Max() float64 {
	best, found := 0.0, false
	for _, v := range f.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best
}

// FTLE computes a Lyapunov exponent per seed node. trs must contain one
// trajectory in direction dir for every seed id 0..nx·ny·nz-1, laid out
// x fastest. The flow-map Jacobian comes from central differences of
// neighbouring endpoints, one-sided at grid edges and identity along
// axes with a single node.
func FTLE(trs []*particle.Trajectory, dims [3]int, m Measure, dir dynamo.Direction) (*FTLEField, error) {
	n := dims[0] * dims[1] * dims[2]
	if n == 0 {
		return nil, fmt.Errorf("ftle: empty grid %v", dims)
	}

	grid := make([]*particle.Trajectory, n)
	for _, tr := range trs {
		if tr.Direction != dir {
			continue
		}
		if tr.SeedID < 0 || tr.SeedID >= n {
			return nil, fmt.Errorf("ftle: seed %d outside grid %v", tr.SeedID, dims)
		}
		if tr.Len() == 0 {
			return nil, fmt.Errorf("%w: seed %d has no points", ErrIncomplete, tr.SeedID)
		}
		grid[tr.SeedID] = tr
	}
	for id, tr := range grid {
		if tr == nil {
			return nil, fmt.Errorf("%w: seed %d missing", ErrIncomplete, id)
		}
	}

	f := &FTLEField{
		Measure: m,
		Dims:    dims,
		Origins: make([]dynamo.Vec3, n),
		Values:  make([]float64, n),
	}
	for id, tr := range grid {
		f.Origins[id] = tr.Points[0].Position
	}

	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				id := f.index(i, j, k)
				jac := jacobian(f, grid, [3]int{i, j, k})
				f.Values[id] = exponent(jac, denominator(grid[id], m))
			}
		}
	}
	return f, nil
}

// jacobian approximates d(end)/d(origin) at node.
func jacobian(f *FTLEField, grid []*particle.Trajectory, node [3]int) *mat.Dense {
	jac := mat.NewDense(3, 3, nil)
	for axis := 0; axis < 3; axis++ {
		if f.Dims[axis] == 1 {
			jac.Set(axis, axis, 1)
			continue
		}
		lo, hi := node, node
		if node[axis] > 0 {
			lo[axis]--
		}
		if node[axis] < f.Dims[axis]-1 {
			hi[axis]++
		}
		a := f.index(lo[0], lo[1], lo[2])
		b := f.index(hi[0], hi[1], hi[2])

		dx := f.Origins[b][axis] - f.Origins[a][axis]
		ea, _ := grid[a].End()
		eb, _ := grid[b].End()
		d := eb.Position.Sub(ea.Position)
		for row := 0; row < 3; row++ {
			jac.Set(row, axis, d[row]/dx)
		}
	}
	return jac
}

func denominator(tr *particle.Trajectory, m Measure) float64 {
	if m == ByDistance {
		return tr.ArcLength()
	}
	end, _ := tr.End()
	return math.Abs(end.Time - tr.Points[0].Time)
}

// exponent is ln(sqrt(λmax(JᵀJ)))/T, zero when T vanishes.
func exponent(jac *mat.Dense, t float64) float64 {
	if t == 0 {
		return 0
	}
	var c mat.SymDense
	c.SymOuterK(1, jac.T())

	var eig mat.EigenSym
	if !eig.Factorize(&c, false) {
		return math.NaN()
	}
	vals := eig.Values(nil)
	lmax := vals[0]
	for _, v := range vals[1:] {
		if v > lmax {
			lmax = v
		}
	}
	if lmax <= 0 {
		return math.Inf(-1)
	}
	return math.Log(math.Sqrt(lmax)) / t
}
