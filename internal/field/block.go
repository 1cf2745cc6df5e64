package field

import (
	"fmt"

	"github.com/san-kum/flowline/internal/compute"
	"github.com/san-kum/flowline/internal/dynamo"
)

// Func is an analytic vector field.
type Func func(pos dynamo.Vec3, t float64) dynamo.Vec3

// Block is the field data of one domain at one snapshot time.
type Block interface {
	Domain() int
	// Bounds returns the ghost-extended region the block can interpolate.
	Bounds() dynamo.Box
	// Evaluate returns the vector at pos, or false when pos is outside Bounds.
	Evaluate(pos dynamo.Vec3) (dynamo.Vec3, bool)
}

// FuncBlock restricts an analytic field to one domain at a frozen time.
type FuncBlock struct {
	domain int
	bounds dynamo.Box
	time   float64
	fn     Func
}

func NewFuncBlock(domain int, bounds dynamo.Box, t float64, fn Func) *FuncBlock {
	return &FuncBlock{domain: domain, bounds: bounds, time: t, fn: fn}
}

func (b *FuncBlock) Domain() int        { return b.domain }
func (b *FuncBlock) Bounds() dynamo.Box { return b.bounds }

func (b *FuncBlock) Evaluate(pos dynamo.Vec3) (dynamo.Vec3, bool) {
	if !b.bounds.Contains(pos) {
		return dynamo.Vec3{}, false
	}
	return b.fn(pos, b.time), true
}

// GridBlock stores node-centred samples on a regular grid and interpolates
// trilinearly between them.
type GridBlock struct {
	domain  int
	bounds  dynamo.Box
	dims    [3]int
	spacing dynamo.Vec3
	values  []dynamo.Vec3
}

// NewGridBlock samples fn at time t on a dims[0]×dims[1]×dims[2] node grid
// spanning bounds. Every dimension needs at least two nodes.
func NewGridBlock(domain int, bounds dynamo.Box, dims [3]int, t float64, fn Func) (*GridBlock, error) {
	for i, n := range dims {
		if n < 2 {
			return nil, fmt.Errorf("grid block %d: axis %d needs at least 2 nodes, got %d", domain, i, n)
		}
	}
	if !bounds.Valid() {
		return nil, fmt.Errorf("grid block %d: invalid bounds", domain)
	}

	size := bounds.Size()
	g := &GridBlock{
		domain: domain,
		bounds: bounds,
		dims:   dims,
		values: make([]dynamo.Vec3, dims[0]*dims[1]*dims[2]),
	}
	for i := 0; i < 3; i++ {
		g.spacing[i] = size[i] / float64(dims[i]-1)
	}

	// one row per (j, k); rows write disjoint slices of values
	compute.GetBackend().ParallelFor(dims[1]*dims[2], func(lo, hi int) {
		for row := lo; row < hi; row++ {
			j, k := row%dims[1], row/dims[1]
			for i := 0; i < dims[0]; i++ {
				p := dynamo.Vec3{
					bounds.Min[0] + float64(i)*g.spacing[0],
					bounds.Min[1] + float64(j)*g.spacing[1],
					bounds.Min[2] + float64(k)*g.spacing[2],
				}
				g.values[g.idx(i, j, k)] = fn(p, t)
			}
		}
	})
	return g, nil
}

func (g *GridBlock) idx(i, j, k int) int {
	return i + j*g.dims[0] + k*g.dims[0]*g.dims[1]
}

func (g *GridBlock) Domain() int        { return g.domain }
func (g *GridBlock) Bounds() dynamo.Box { return g.bounds }

func (g *GridBlock) Evaluate(pos dynamo.Vec3) (dynamo.Vec3, bool) {
	if !g.bounds.Contains(pos) {
		return dynamo.Vec3{}, false
	}

	var cell [3]int
	var frac [3]float64
	for a := 0; a < 3; a++ {
		if g.spacing[a] == 0 {
			continue
		}
		u := (pos[a] - g.bounds.Min[a]) / g.spacing[a]
		c := int(u)
		if c >= g.dims[a]-1 {
			c = g.dims[a] - 2
		}
		if c < 0 {
			c = 0
		}
		cell[a] = c
		frac[a] = u - float64(c)
	}

	var out dynamo.Vec3
	for dk := 0; dk < 2; dk++ {
		wz := frac[2]
		if dk == 0 {
			wz = 1 - frac[2]
		}
		for dj := 0; dj < 2; dj++ {
			wy := frac[1]
			if dj == 0 {
				wy = 1 - frac[1]
			}
			for di := 0; di < 2; di++ {
				wx := frac[0]
				if di == 0 {
					wx = 1 - frac[0]
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}
				out = out.AddScaled(w, g.values[g.idx(cell[0]+di, cell[1]+dj, cell[2]+dk)])
			}
		}
	}
	return out, true
}
