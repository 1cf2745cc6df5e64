package viz

import (
	"fmt"
	"math"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Projection maps a 3-D position to canvas data coordinates.
type Projection interface {
	Project(p dynamo.Vec3) [2]float64
}

// Plane drops one axis: U and V name the kept axes (0=x, 1=y, 2=z).
type Plane struct {
	U, V int
}

func (pl Plane) Project(p dynamo.Vec3) [2]float64 {
	return [2]float64{p[pl.U], p[pl.V]}
}

// Camera rotates about z by Yaw, then about the new x axis by Pitch, and
// looks down the rotated z axis.
type Camera struct {
	Yaw, Pitch float64
}

func NewCamera() *Camera {
	return &Camera{Yaw: math.Pi / 6, Pitch: -math.Pi / 3}
}

func (c *Camera) Rotate(p dynamo.Vec3) dynamo.Vec3 {
	cy, sy := math.Cos(c.Yaw), math.Sin(c.Yaw)
	x, y, z := p[0]*cy-p[1]*sy, p[0]*sy+p[1]*cy, p[2]
	cp, sp := math.Cos(c.Pitch), math.Sin(c.Pitch)
	return dynamo.Vec3{x, y*cp - z*sp, y*sp + z*cp}
}

func (c *Camera) Project(p dynamo.Vec3) [2]float64 {
	r := c.Rotate(p)
	return [2]float64{r[0], r[1]}
}

// ParseProjection accepts the axis pairs "xy", "xz", "yz" and "3d".
func ParseProjection(s string) (Projection, error) {
	switch s {
	case "xy", "":
		return Plane{0, 1}, nil
	case "xz":
		return Plane{0, 2}, nil
	case "yz":
		return Plane{1, 2}, nil
	case "3d":
		return NewCamera(), nil
	}
	return nil, fmt.Errorf("unknown projection: %q", s)
}
