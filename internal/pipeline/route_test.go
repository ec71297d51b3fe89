package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleRouteEndpoints(t *testing.T) {
	coords := SampleRoute(37.785215, -122.417924, 37.785821, -122.412989, 35)
	require.Len(t, coords, 35)

	assert.Equal(t, Coordinate{Lat: 37.785215, Lon: -122.417924}, coords[0])
	assert.Equal(t, Coordinate{Lat: 37.785821, Lon: -122.412989}, coords[len(coords)-1])
}

func TestSampleRouteSinglePoint(t *testing.T) {
	coords := SampleRoute(37.785215, -122.417924, 37.785821, -122.412989, 1)
	require.Len(t, coords, 1)
	assert.Equal(t, Coordinate{Lat: 37.785215, Lon: -122.417924}, coords[0])
}

func TestSampleRouteTwoPoints(t *testing.T) {
	coords := SampleRoute(1, 2, 3, 4, 2)
	require.Len(t, coords, 2)
	assert.Equal(t, Coordinate{Lat: 1, Lon: 2}, coords[0])
	assert.Equal(t, Coordinate{Lat: 3, Lon: 4}, coords[1])
}

func TestSampleRouteRounding(t *testing.T) {
	coords := SampleRoute(0, 0, 1, 1, 3)
	require.Len(t, coords, 3)
	assert.Equal(t, Coordinate{Lat: 0.5, Lon: 0.5}, coords[1])

	for _, c := range coords {
		assert.Equal(t, round6(c.Lat), c.Lat)
		assert.Equal(t, round6(c.Lon), c.Lon)
	}
}

func TestSampleRouteDeterministic(t *testing.T) {
	a := SampleRoute(40.712776, -74.005974, 40.730610, -73.935242, 20)
	b := SampleRoute(40.712776, -74.005974, 40.730610, -73.935242, 20)
	assert.Equal(t, a, b)
}

func TestSampleRouteInvalidCount(t *testing.T) {
	assert.Nil(t, SampleRoute(0, 0, 1, 1, 0))
	assert.Nil(t, SampleRoute(0, 0, 1, 1, -3))
}
