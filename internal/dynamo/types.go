package dynamo

import (
	"fmt"
	"math"
)

// Vec3 is a point or vector in three dimensions.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v[0] * f, v[1] * f, v[2] * f}
}

// AddScaled returns v + f*o.
func (v Vec3) AddScaled(f float64, o Vec3) Vec3 {
	return Vec3{v[0] + f*o[0], v[1] + f*o[1], v[2] + f*o[2]}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// MaxAbs returns the largest component magnitude.
func (v Vec3) MaxAbs() float64 {
	return math.Max(math.Abs(v[0]), math.Max(math.Abs(v[1]), math.Abs(v[2])))
}

func (v Vec3) IsValid() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.6g, %.6g, %.6g)", v[0], v[1], v[2])
}

// Direction of integration along the field.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
	// Both realizes one forward and one backward particle per seed.
	Both Direction = 0
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection maps a config string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "":
		return Forward, nil
	case "backward":
		return Backward, nil
	case "both":
		return Both, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s", s)
	}
}

// Sign returns +1 or -1; Both is treated as forward.
func (d Direction) Sign() float64 {
	if d == Backward {
		return -1
	}
	return 1
}
