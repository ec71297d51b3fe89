package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Detection is one detected object instance in image pixel space.
type Detection struct {
	Box     [4]int  `json:"box"`
	Label   string  `json:"label"`
	Score   float32 `json:"score"`
	Caption string  `json:"caption,omitempty"`
}

// Detector maps an image and a label vocabulary to zero or more
// detections. Implementations are not assumed reentrant; callers go
// through the registry which hands out serialized instances.
type Detector interface {
	Name() string
	Detect(ctx context.Context, image []byte, vocabulary []string) ([]Detection, error)
}

// Registry resolves a backend by name at request time.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Detector
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Detector)}
}

func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[d.Name()] = d
}

func (r *Registry) Get(name string) (Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown detector: %s", name)
	}
	return d, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter applies the score threshold and the case-insensitive keyword
// allow-list uniformly, regardless of which backend produced the results.
func Filter(detections []Detection, scoreThreshold float32, allowedKeywords []string) []Detection {
	var out []Detection
	for _, d := range detections {
		if d.Score < scoreThreshold {
			continue
		}
		if !matchesKeyword(d.Label, allowedKeywords) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func matchesKeyword(label string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	l := strings.ToLower(label)
	for _, kw := range keywords {
		if strings.Contains(l, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
