package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"streetsight/internal/aggregator"
	"streetsight/internal/config"
	"streetsight/internal/dao"
	"streetsight/internal/detector"
	"streetsight/internal/geocode"
	"streetsight/internal/model"
)

// fakeSource encodes the unit identity into the frame bytes so the fake
// detector can target a single unit deterministically.
type fakeSource struct {
	failHeading int // heading degrees that fail to fetch, 0 for none
}

func frameFor(lat, lon float64, heading int) []byte {
	return []byte(fmt.Sprintf("frame:%.6f:%.6f:%d", lat, lon, heading))
}

func (s *fakeSource) Fetch(ctx context.Context, lat, lon float64, heading int) ([]byte, error) {
	if s.failHeading != 0 && heading == s.failHeading {
		return nil, fmt.Errorf("upstream returned 500")
	}
	return frameFor(lat, lon, heading), nil
}

type fakeGeocoder struct{}

func (fakeGeocoder) Resolve(ctx context.Context, lat, lon float64) (geocode.Address, error) {
	return geocode.Address{Street: "1 Test Way", City: "Testville", State: "CA", Zipcode: "90001"}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	cleared []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (s *fakeStore) RemovePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, prefix)
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *fakeStore) keysWithPrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *fakeStore) get(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key]
}

// frameDetector fires only on one exact frame.
type frameDetector struct {
	target     []byte
	detections []detector.Detection
}

func (frameDetector) Name() string { return "frame-test" }

func (d *frameDetector) Detect(ctx context.Context, image []byte, vocabulary []string) ([]detector.Detection, error) {
	if string(image) == string(d.target) {
		return d.detections, nil
	}
	return nil, nil
}

func testConfig() *config.Config {
	conf := config.DefaultConfig()
	conf.Detection.Labels = []string{"a graffiti vandalism", "a tent on the sidewalk"}
	conf.Detection.AllowedKeywords = []string{"graffiti", "tent", "damage", "trash"}
	conf.Detection.ScoreThreshold = 0.4
	conf.Pipeline.Workers = 1
	return conf
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	return db
}

func TestRunDetectsAndPersists(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	route := []Coordinate{{Lat: 37.785215, Lon: -122.417924}, {Lat: 37.786001, Lon: -122.418555}}

	// Exactly one unit (first coordinate, front heading) is positive.
	det := &frameDetector{
		target: frameFor(route[0].Lat, route[0].Lon, 90),
		detections: []detector.Detection{
			{Box: [4]int{10, 10, 50, 50}, Label: "a graffiti vandalism", Score: 0.8},
		},
	}

	pipe := New(testConfig(), &fakeSource{}, fakeGeocoder{}, store, aggregator.New(db), nil)

	var emitted []dao.StreamProgress
	done := pipe.Run(context.Background(), RunParams{
		UserId:   7,
		Route:    route,
		Detector: det,
		Emit:     func(p dao.StreamProgress) { emitted = append(emitted, p) },
	})

	assert.Equal(t, 8, done.TotalUnits)
	assert.Equal(t, 1, done.DetectedUnits)
	assert.Zero(t, done.ErroredUnits)
	assert.False(t, done.Cancelled)

	require.Len(t, emitted, 8)
	seen := map[int]bool{}
	detected := 0
	for _, p := range emitted {
		seen[p.Seq] = true
		assert.Empty(t, p.Error)
		assert.NotEmpty(t, p.URL)
		if p.Detected {
			detected++
			assert.Equal(t, "front", p.Direction)
			require.Len(t, p.Boxes, 1)
			assert.Equal(t, [4]int{10, 10, 50, 50}, p.Boxes[0])
			assert.Equal(t, []string{"a graffiti vandalism"}, p.Labels)
		}
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, 1, detected)

	// The previous run's stream folder was cleared first.
	assert.Contains(t, store.cleared, "user7-livestream")
	assert.Len(t, store.keysWithPrefix("user7-livestream/"), 8)

	// The detected namespace holds the untouched frame; annotating the
	// synthetic frame fails so no companion copy lands.
	detectedKeys := store.keysWithPrefix("detected-images/")
	require.Len(t, detectedKeys, 1)
	assert.Equal(t, frameFor(route[0].Lat, route[0].Lon, 90), store.get(detectedKeys[0]))

	var eventCount, imageCount int64
	require.NoError(t, db.Model(&model.DetectionEvent{}).Count(&eventCount).Error)
	require.NoError(t, db.Model(&model.DetectionImage{}).Count(&imageCount).Error)
	assert.EqualValues(t, 1, eventCount)
	assert.EqualValues(t, 1, imageCount)

	var images []model.DetectionImage
	require.NoError(t, db.Find(&images).Error)
	require.Len(t, images, 1)
	assert.Contains(t, images[0].ImageURL, "detected-images/")

	var metadatas []model.DetectionMetadata
	require.NoError(t, db.Find(&metadatas).Error)
	require.Len(t, metadatas, 1)
	assert.Equal(t, model.DetectionTypeGraffiti, metadatas[0].Type)

	var tasks []model.Task
	require.NoError(t, db.Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskStatusUnverified, tasks[0].Status)
}

func TestRunIsolatesFetchFailure(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	route := []Coordinate{{Lat: 1.0, Lon: 2.0}, {Lat: 1.5, Lon: 2.5}}

	// Every back-heading fetch fails, the other six units still complete.
	pipe := New(testConfig(), &fakeSource{failHeading: 270}, fakeGeocoder{}, store,
		aggregator.New(db), nil)

	var emitted []dao.StreamProgress
	done := pipe.Run(context.Background(), RunParams{
		UserId:   3,
		Route:    route,
		Detector: &frameDetector{},
		Emit:     func(p dao.StreamProgress) { emitted = append(emitted, p) },
	})

	assert.Equal(t, 8, done.TotalUnits)
	assert.Equal(t, 2, done.ErroredUnits)
	assert.False(t, done.Cancelled)

	require.Len(t, emitted, 8)
	errored := 0
	for _, p := range emitted {
		if p.Error != "" {
			errored++
			assert.Equal(t, "back", p.Direction)
			assert.Contains(t, p.Error, "image fetch failed")
			assert.Empty(t, p.URL)
		}
	}
	assert.Equal(t, 2, errored)

	// Failed units never reach storage.
	assert.Len(t, store.keysWithPrefix("user3-livestream/"), 6)
}

func TestRunCancelledBeforeDispatch(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()

	pipe := New(testConfig(), &fakeSource{}, fakeGeocoder{}, store, aggregator.New(db), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var emitted []dao.StreamProgress
	done := pipe.Run(ctx, RunParams{
		UserId:   5,
		Route:    []Coordinate{{Lat: 1.0, Lon: 2.0}, {Lat: 1.5, Lon: 2.5}},
		Detector: &frameDetector{},
		Emit:     func(p dao.StreamProgress) { emitted = append(emitted, p) },
	})

	assert.True(t, done.Cancelled)
	assert.Zero(t, done.TotalUnits)
	assert.Empty(t, emitted)
}

func TestRunCancelMidRoute(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()

	pipe := New(testConfig(), &fakeSource{}, fakeGeocoder{}, store, aggregator.New(db), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := pipe.Run(ctx, RunParams{
		UserId:   5,
		Route:    []Coordinate{{Lat: 1.0, Lon: 2.0}, {Lat: 1.5, Lon: 2.5}},
		Detector: &frameDetector{},
		Emit:     func(dao.StreamProgress) { cancel() },
	})

	// The first unit completes and cancels. At most one more unit can
	// already be in flight on the unbuffered channel; none is dispatched
	// after the context is done.
	assert.True(t, done.Cancelled)
	assert.GreaterOrEqual(t, done.TotalUnits, 1)
	assert.LessOrEqual(t, done.TotalUnits, 2)
}

func TestDefaultHeadingOrder(t *testing.T) {
	require.Len(t, DefaultHeadings, 4)
	assert.Equal(t, Heading{Direction: model.DirectionFront, Degrees: 90}, DefaultHeadings[0])
	assert.Equal(t, Heading{Direction: model.DirectionRight, Degrees: 180}, DefaultHeadings[1])
	assert.Equal(t, Heading{Direction: model.DirectionBack, Degrees: 270}, DefaultHeadings[2])
	assert.Equal(t, Heading{Direction: model.DirectionLeft, Degrees: 360}, DefaultHeadings[3])
}
