package analysis

import (
	"fmt"
	"math"
	"sort"
)

// OverlapMode selects how punctures of overlapping curve sections are
// reconciled.
type OverlapMode string

const (
	// Raw keeps every puncture.
	Raw OverlapMode = "raw"
	// Remove drops punctures within tolerance of an earlier one.
	Remove OverlapMode = "remove"
	// Merge replaces each cluster of nearby punctures by its centroid.
	Merge OverlapMode = "merge"
	// Smooth averages each puncture with its neighbours along the curve of
	// its seed, ordered by angle about the curve centroid.
	Smooth OverlapMode = "smooth"
)

func ParseOverlapMode(s string) (OverlapMode, error) {
	switch m := OverlapMode(s); m {
	case Raw, Remove, Merge, Smooth:
		return m, nil
	case "":
		return Raw, nil
	}
	return "", fmt.Errorf("unknown overlap mode: %q", s)
}

// Reconcile applies mode to ps. The input is not modified.
func Reconcile(ps []Puncture, mode OverlapMode, tol float64) ([]Puncture, error) {
	switch mode {
	case Raw, "":
		return append([]Puncture(nil), ps...), nil
	case Remove:
		return removeDuplicates(ps, tol), nil
	case Merge:
		return merge(ps, tol), nil
	case Smooth:
		return smooth(ps), nil
	}
	return nil, fmt.Errorf("unknown overlap mode: %q", mode)
}

func near(a, b Puncture, tol float64) bool {
	return math.Hypot(a.U-b.U, a.V-b.V) <= tol
}

func removeDuplicates(ps []Puncture, tol float64) []Puncture {
	var kept []Puncture
	for _, p := range ps {
		dup := false
		for _, k := range kept {
			if near(p, k, tol) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, p)
		}
	}
	return kept
}

func merge(ps []Puncture, tol float64) []Puncture {
	type cluster struct {
		first Puncture
		u, v  float64
		n     int
	}
	var cs []*cluster
	for _, p := range ps {
		var home *cluster
		for _, c := range cs {
			if near(p, c.first, tol) {
				home = c
				break
			}
		}
		if home == nil {
			home = &cluster{first: p}
			cs = append(cs, home)
		}
		home.u += p.U
		home.v += p.V
		home.n++
	}

	out := make([]Puncture, len(cs))
	for i, c := range cs {
		p := c.first
		p.U = c.u / float64(c.n)
		p.V = c.v / float64(c.n)
		out[i] = p
	}
	return out
}

func smooth(ps []Puncture) []Puncture {
	bySeed := make(map[int][]int)
	var seeds []int
	for i, p := range ps {
		if _, ok := bySeed[p.SeedID]; !ok {
			seeds = append(seeds, p.SeedID)
		}
		bySeed[p.SeedID] = append(bySeed[p.SeedID], i)
	}

	out := append([]Puncture(nil), ps...)
	for _, s := range seeds {
		idx := bySeed[s]
		if len(idx) < 3 {
			continue
		}
		var cu, cv float64
		for _, i := range idx {
			cu += ps[i].U
			cv += ps[i].V
		}
		cu /= float64(len(idx))
		cv /= float64(len(idx))

		order := append([]int(nil), idx...)
		sort.SliceStable(order, func(a, b int) bool {
			pa, pb := ps[order[a]], ps[order[b]]
			return math.Atan2(pa.V-cv, pa.U-cu) < math.Atan2(pb.V-cv, pb.U-cu)
		})

		n := len(order)
		for k, i := range order {
			prev, next := ps[order[(k-1+n)%n]], ps[order[(k+1)%n]]
			out[i].U = (prev.U + ps[i].U + next.U) / 3
			out[i].V = (prev.V + ps[i].V + next.V) / 3
		}
	}
	return out
}
