package pipeline

import "math"

// Coordinate is one sampled point on a route, rounded to 6 decimal places.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SampleRoute generates count evenly spaced coordinates between start and
// end, inclusive of both endpoints. count == 1 returns just the start.
// Pure and deterministic: identical inputs yield an identical sequence.
func SampleRoute(startLat, startLon, endLat, endLon float64, count int) []Coordinate {
	if count < 1 {
		return nil
	}
	if count == 1 {
		return []Coordinate{{Lat: round6(startLat), Lon: round6(startLon)}}
	}

	coords := make([]Coordinate, 0, count)
	steps := float64(count - 1)
	for i := 0; i < count; i++ {
		t := float64(i) / steps
		coords = append(coords, Coordinate{
			Lat: round6(startLat + (endLat-startLat)*t),
			Lon: round6(startLon + (endLon-startLon)*t),
		})
	}
	return coords
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
