package dynamo

// Box is a closed axis-aligned region [Min, Max].
type Box struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

func (b Box) Contains(p Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// OnBoundary reports whether p lies on one of the faces of b.
func (b Box) OnBoundary(p Vec3) bool {
	if !b.Contains(p) {
		return false
	}
	for i := 0; i < 3; i++ {
		if p[i] == b.Min[i] || p[i] == b.Max[i] {
			return true
		}
	}
	return false
}

// Expand grows the box by g on every side.
func (b Box) Expand(g float64) Box {
	return Box{
		Min: Vec3{b.Min[0] - g, b.Min[1] - g, b.Min[2] - g},
		Max: Vec3{b.Max[0] + g, b.Max[1] + g, b.Max[2] + g},
	}
}

// Touches reports whether the closed boxes share at least one point.
func (b Box) Touches(o Box) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

func (b Box) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Box) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

func (b Box) Valid() bool {
	return b.Min.IsValid() && b.Max.IsValid() &&
		b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}
