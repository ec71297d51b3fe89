package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLabel(t *testing.T) {
	cases := []struct {
		label string
		want  DetectionType
	}{
		{"a graffiti vandalism", DetectionTypeGraffiti},
		{"Graffiti on a wall", DetectionTypeGraffiti},
		{"a tent on the sidewalk", DetectionTypeTent},
		{"a crack on the road", DetectionTypeRoadDamage},
		{"a hole on the road", DetectionTypeRoadDamage},
		{"road damage", DetectionTypeRoadDamage},
		{"a pile of trash", DetectionTypeTrash},
	}

	for _, tc := range cases {
		got, err := ClassifyLabel(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.want, got, tc.label)
	}
}

func TestClassifyLabelUnknown(t *testing.T) {
	_, err := ClassifyLabel("a parked car")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown label")
}
