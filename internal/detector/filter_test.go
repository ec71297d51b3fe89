package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeywords = []string{"graffiti", "hole", "crack", "tent", "trash"}

func TestFilterScoreThreshold(t *testing.T) {
	detections := []Detection{
		{Box: [4]int{10, 10, 50, 50}, Label: "a graffiti vandalism", Score: 0.39},
		{Box: [4]int{10, 10, 50, 50}, Label: "a graffiti vandalism", Score: 0.8},
	}

	out := Filter(detections, 0.4, testKeywords)
	require.Len(t, out, 1)
	assert.Equal(t, float32(0.8), out[0].Score)
}

func TestFilterKeywordAllowList(t *testing.T) {
	detections := []Detection{
		{Label: "a parked car", Score: 0.95},
		{Label: "a Tent On The Sidewalk", Score: 0.9},
	}

	out := Filter(detections, 0.4, testKeywords)
	require.Len(t, out, 1)
	assert.Equal(t, "a Tent On The Sidewalk", out[0].Label)
}

func TestFilterHighScoreWrongLabelExcluded(t *testing.T) {
	out := Filter([]Detection{{Label: "a pedestrian", Score: 0.99}}, 0.4, testKeywords)
	assert.Empty(t, out)
}

func TestFilterEmptyKeywordsKeepsAll(t *testing.T) {
	out := Filter([]Detection{{Label: "anything", Score: 0.5}}, 0.4, nil)
	assert.Len(t, out, 1)
}

type staticDetector struct {
	name       string
	detections []Detection
}

func (s *staticDetector) Name() string { return s.name }

func (s *staticDetector) Detect(context.Context, []byte, []string) ([]Detection, error) {
	return s.detections, nil
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&staticDetector{name: "dino"})
	registry.Register(&staticDetector{name: "yolo-combined"})

	d, err := registry.Get("dino")
	require.NoError(t, err)
	assert.Equal(t, "dino", d.Name())

	_, err = registry.Get("nope")
	require.Error(t, err)

	assert.Equal(t, []string{"dino", "yolo-combined"}, registry.Names())
}
