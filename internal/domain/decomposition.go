// Package domain maps positions to the mesh domains that contain them and
// domains to the ranks that own them.
package domain

import (
	"fmt"
	"sort"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Decomposition is an immutable set of closed axis-aligned domain boxes.
// Where boxes share a face the lower id wins.
type Decomposition struct {
	boxes     []dynamo.Box
	ghost     float64
	bounds    dynamo.Box
	neighbors [][]int
	// shadows[i] lists lower ids whose boxes overlap box i with volume.
	shadows [][]int
}

// New builds an unstructured decomposition from arbitrary boxes.
func New(boxes []dynamo.Box, ghost float64) (*Decomposition, error) {
	if len(boxes) == 0 {
		return nil, fmt.Errorf("decomposition needs at least one domain")
	}
	if ghost < 0 {
		return nil, fmt.Errorf("negative ghost width %g", ghost)
	}

	d := &Decomposition{
		boxes:     append([]dynamo.Box(nil), boxes...),
		ghost:     ghost,
		bounds:    boxes[0],
		neighbors: make([][]int, len(boxes)),
		shadows:   make([][]int, len(boxes)),
	}
	for i, b := range boxes {
		if !b.Valid() {
			return nil, fmt.Errorf("domain %d: invalid box %v..%v", i, b.Min, b.Max)
		}
		for a := 0; a < 3; a++ {
			if b.Min[a] < d.bounds.Min[a] {
				d.bounds.Min[a] = b.Min[a]
			}
			if b.Max[a] > d.bounds.Max[a] {
				d.bounds.Max[a] = b.Max[a]
			}
		}
	}
	for i := range boxes {
		for j := range boxes {
			if i == j || !boxes[i].Touches(boxes[j]) {
				continue
			}
			d.neighbors[i] = append(d.neighbors[i], j)
			if j < i && overlaps(boxes[i], boxes[j]) {
				d.shadows[i] = append(d.shadows[i], j)
			}
		}
	}
	return d, nil
}

// NewGrid splits bounds into nx×ny×nz equal boxes. Domain ids run x
// fastest, then y, then z.
func NewGrid(bounds dynamo.Box, nx, ny, nz int, ghost float64) (*Decomposition, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%dx%d", nx, ny, nz)
	}
	if !bounds.Valid() {
		return nil, fmt.Errorf("invalid grid bounds")
	}

	n := [3]int{nx, ny, nz}
	edge := func(axis, i int) float64 {
		if i == n[axis] {
			return bounds.Max[axis]
		}
		return bounds.Min[axis] + (bounds.Max[axis]-bounds.Min[axis])*float64(i)/float64(n[axis])
	}

	boxes := make([]dynamo.Box, 0, nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				boxes = append(boxes, dynamo.Box{
					Min: dynamo.Vec3{edge(0, i), edge(1, j), edge(2, k)},
					Max: dynamo.Vec3{edge(0, i+1), edge(1, j+1), edge(2, k+1)},
				})
			}
		}
	}
	return New(boxes, ghost)
}

func (d *Decomposition) Len() int           { return len(d.boxes) }
func (d *Decomposition) Ghost() float64     { return d.ghost }
func (d *Decomposition) Bounds() dynamo.Box { return d.bounds }

// Box returns the box of domain id without ghost cells.
func (d *Decomposition) Box(id int) dynamo.Box { return d.boxes[id] }

// Boxes returns a copy of every domain box in id order.
func (d *Decomposition) Boxes() []dynamo.Box {
	return append([]dynamo.Box(nil), d.boxes...)
}

// Neighbors returns the ids of domains touching id, ascending.
func (d *Decomposition) Neighbors(id int) []int { return d.neighbors[id] }

// Find returns the lowest id whose box contains pos.
func (d *Decomposition) Find(pos dynamo.Vec3) (int, error) {
	for i, b := range d.boxes {
		if b.Contains(pos) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %v", dynamo.ErrNotFound, pos)
}

// Confirm is the cheap check that pos still belongs to current. It may
// answer false for boundary points that Find would attribute to current.
func (d *Decomposition) Confirm(current int, pos dynamo.Vec3) bool {
	if current < 0 || current >= len(d.boxes) {
		return false
	}
	b := d.boxes[current]
	if !b.Contains(pos) || b.OnBoundary(pos) {
		return false
	}
	for _, j := range d.shadows[current] {
		if d.boxes[j].Contains(pos) {
			return false
		}
	}
	return true
}

func overlaps(a, b dynamo.Box) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] <= b.Min[i] || b.Max[i] <= a.Min[i] {
			return false
		}
	}
	return true
}

// Search finds the domain of pos starting from current, trying the
// current box and its neighbours before the rest. The answer always
// equals Find(pos).
func (d *Decomposition) Search(current int, pos dynamo.Vec3) (int, error) {
	if d.Confirm(current, pos) {
		return current, nil
	}
	if current < 0 || current >= len(d.boxes) {
		return d.Find(pos)
	}

	candidates := append([]int{current}, d.neighbors[current]...)
	sort.Ints(candidates)
	best := -1
	for _, id := range candidates {
		if d.boxes[id].Contains(pos) {
			best = id
			break
		}
	}
	if best < 0 {
		return d.Find(pos)
	}
	for id := 0; id < best; id++ {
		if d.boxes[id].Contains(pos) {
			return id, nil
		}
	}
	return best, nil
}
