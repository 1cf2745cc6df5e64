package seed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/dynamo"
)

func TestGenerateCounts(t *testing.T) {
	unitBox := dynamo.Box{Max: dynamo.Vec3{1, 1, 1}}

	tests := []struct {
		name string
		src  Source
		want int
	}{
		{"point", Source{Kind: Point, Center: dynamo.Vec3{1, 2, 3}}, 1},
		{"points", Source{Kind: Points, Points: []dynamo.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}}, 3},
		{"line by count", Source{Kind: Line, End: dynamo.Vec3{1, 0, 0}, Counts: [3]int{5}}, 5},
		{"line by density", Source{Kind: Line, End: dynamo.Vec3{2, 0, 0}, Density: 2}, 5},
		{"circle boundary", Source{Kind: Circle, Region: Boundary, Normal: dynamo.Vec3{0, 0, 1}, Radius: 1, Counts: [3]int{12}}, 12},
		{"plane", Source{Kind: Plane, Normal: dynamo.Vec3{0, 0, 1}, Width: 2, Height: 1, Counts: [3]int{4, 3}}, 12},
		{"plane boundary", Source{Kind: Plane, Region: Boundary, Normal: dynamo.Vec3{0, 0, 1}, Width: 2, Height: 1, Counts: [3]int{4, 3}}, 10},
		{"sphere boundary", Source{Kind: Sphere, Region: Boundary, Radius: 2, Counts: [3]int{50}}, 50},
		{"box interior", Source{Kind: Box, Bounds: unitBox, Counts: [3]int{3, 4, 5}}, 60},
		{"box boundary", Source{Kind: Box, Region: Boundary, Bounds: unitBox, Counts: [3]int{3, 3, 3}}, 26},
		{"flat box", Source{Kind: Box, Bounds: dynamo.Box{Max: dynamo.Vec3{1, 1, 0}}, Counts: [3]int{2, 2, 0}}, 4},
		{"random box", Source{Kind: Box, Sampling: Random, Bounds: unitBox, Counts: [3]int{2, 2, 2}}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seeds, err := tt.src.Generate()
			require.NoError(t, err)
			assert.Len(t, seeds, tt.want)
			for i, s := range seeds {
				assert.Equal(t, i, s.ID)
			}
		})
	}
}

func TestShapesStayOnTheirGeometry(t *testing.T) {
	center := dynamo.Vec3{1, -1, 2}

	circle, err := Source{Kind: Circle, Region: Boundary, Center: center, Normal: dynamo.Vec3{1, 1, 0}, Radius: 0.5, Counts: [3]int{16}}.Generate()
	require.NoError(t, err)
	for _, s := range circle {
		d := s.Position.Sub(center)
		assert.InDelta(t, 0.5, d.Norm(), 1e-12)
		assert.InDelta(t, 0, d.Dot(dynamo.Vec3{1, 1, 0}), 1e-12)
	}

	for _, sampling := range []Sampling{Uniform, Random} {
		shell, err := Source{Kind: Sphere, Sampling: sampling, Region: Boundary, Center: center, Radius: 3, Counts: [3]int{40}}.Generate()
		require.NoError(t, err)
		for _, s := range shell {
			assert.InDelta(t, 3, s.Position.Sub(center).Norm(), 1e-9)
		}

		ball, err := Source{Kind: Sphere, Sampling: sampling, Center: center, Radius: 3, Counts: [3]int{6}}.Generate()
		require.NoError(t, err)
		require.NotEmpty(t, ball)
		for _, s := range ball {
			assert.LessOrEqual(t, s.Position.Sub(center).Norm(), 3+1e-9)
		}
	}

	line, err := Source{Kind: Line, Start: dynamo.Vec3{0, 0, 0}, End: dynamo.Vec3{0, 4, 0}, Counts: [3]int{3}}.Generate()
	require.NoError(t, err)
	assert.Equal(t, dynamo.Vec3{0, 2, 0}, line[1].Position)
}

func TestRandomIsReproducible(t *testing.T) {
	src := Source{Kind: Box, Sampling: Random, Bounds: dynamo.Box{Max: dynamo.Vec3{1, 1, 1}}, Counts: [3]int{4, 4, 4}, RandomSeed: 42}
	a, err := src.Generate()
	require.NoError(t, err)
	b, err := src.Generate()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	src.RandomSeed = 43
	c, err := src.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	for _, s := range a {
		assert.True(t, src.Bounds.Contains(s.Position))
	}
}

func TestRandomBoxBoundaryOnFaces(t *testing.T) {
	b := dynamo.Box{Max: dynamo.Vec3{2, 2, 2}}
	seeds, err := Source{Kind: Box, Sampling: Random, Region: Boundary, Bounds: b, Counts: [3]int{5, 5, 5}, RandomSeed: 7}.Generate()
	require.NoError(t, err)
	for _, s := range seeds {
		assert.True(t, b.OnBoundary(s.Position), "%v", s.Position)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"unknown kind", Source{Kind: "torus"}},
		{"empty points", Source{Kind: Points}},
		{"line without count", Source{Kind: Line, End: dynamo.Vec3{1, 0, 0}}},
		{"circle without radius", Source{Kind: Circle, Normal: dynamo.Vec3{0, 0, 1}, Counts: [3]int{3}}},
		{"zero normal", Source{Kind: Plane, Width: 1, Height: 1, Counts: [3]int{2, 2}}},
		{"invalid box", Source{Kind: Box, Bounds: dynamo.Box{Min: dynamo.Vec3{1, 0, 0}}, Counts: [3]int{2, 2, 2}}},
		{"nan point", Source{Kind: Point, Center: dynamo.Vec3{math.NaN(), 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.src.Generate()
			assert.Error(t, err)
		})
	}
}

func TestGridDims(t *testing.T) {
	src := Source{Kind: Box, Bounds: dynamo.Box{Max: dynamo.Vec3{1, 2, 0}}, Density: 2}
	dims, err := src.GridDims()
	require.NoError(t, err)
	assert.Equal(t, [3]int{3, 5, 1}, dims)

	_, err = Source{Kind: Sphere}.GridDims()
	assert.Error(t, err)
}
