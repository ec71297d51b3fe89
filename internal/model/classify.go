package model

import (
	"fmt"
	"strings"
)

type DetectionType string

const (
	DetectionTypeGraffiti   DetectionType = "graffiti"
	DetectionTypeTent       DetectionType = "tent"
	DetectionTypeRoadDamage DetectionType = "road_damage"
	DetectionTypeTrash      DetectionType = "trash"
)

// ClassifyLabel maps a raw detector label to its anomaly category by
// keyword matching. The mapping is deterministic and total over the
// configured vocabulary; an unrecognized label is an error, never a
// silent default.
func ClassifyLabel(label string) (DetectionType, error) {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "graffiti"):
		return DetectionTypeGraffiti, nil
	case strings.Contains(l, "tent"):
		return DetectionTypeTent, nil
	case strings.Contains(l, "damage"), strings.Contains(l, "crack"), strings.Contains(l, "hole"):
		return DetectionTypeRoadDamage, nil
	case strings.Contains(l, "trash"):
		return DetectionTypeTrash, nil
	}
	return "", fmt.Errorf("unknown label: %s", label)
}
