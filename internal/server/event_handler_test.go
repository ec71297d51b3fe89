package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"streetsight/internal/config"
	"streetsight/internal/dao"
	"streetsight/internal/detector"
	"streetsight/internal/model"
)

type nopDetector struct{ name string }

func (d nopDetector) Name() string { return d.name }

func (nopDetector) Detect(ctx context.Context, image []byte, vocabulary []string) ([]detector.Detection, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))

	registry := detector.NewRegistry()
	registry.Register(nopDetector{name: "dino"})
	registry.Register(nopDetector{name: "yolo-combined"})

	s, err := NewServer(context.Background(), config.DefaultConfig(), db, nil, registry)
	require.NoError(t, err)
	return s, db
}

func seedEvent(t *testing.T, db *gorm.DB, lat, lon float64) *model.DetectionEvent {
	t.Helper()
	event := &model.DetectionEvent{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: time.Now().UTC(),
		Street:    "123 Market St",
		City:      "San Francisco",
		State:     "CA",
		Zipcode:   "94103",
	}
	require.NoError(t, db.Create(event).Error)

	image := &model.DetectionImage{
		EventId:   event.Id,
		Direction: model.DirectionFront,
		ImageURL:  "https://cdn.test/detected-images/a.jpg",
	}
	require.NoError(t, db.Create(image).Error)

	metadata := &model.DetectionMetadata{
		ImageId: image.Id,
		X1:      10, Y1: 10, X2: 50, Y2: 50,
		Label: "a graffiti vandalism",
		Score: 0.8,
		Type:  model.DetectionTypeGraffiti,
	}
	require.NoError(t, db.Create(metadata).Error)
	require.NoError(t, db.Create(&model.Task{
		MetadataId: metadata.Id,
		Status:     model.TaskStatusUnverified,
		CreatedAt:  time.Now().UTC(),
	}).Error)
	return event
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.SetUpRouter().ServeHTTP(w, req)
	return w
}

func TestGetEvent(t *testing.T) {
	s, db := newTestServer(t)
	event := seedEvent(t, db, 37.785215, -122.417924)

	w := doRequest(s, http.MethodGet, "/api/v1/event/"+strconv.Itoa(event.Id))
	require.Equal(t, http.StatusOK, w.Code)

	var spec dao.EventSpec
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spec))
	assert.Equal(t, event.Id, spec.Id)
	assert.Equal(t, 37.785215, spec.Latitude)
	assert.Equal(t, "San Francisco", spec.City)
	require.Len(t, spec.Images, 1)
	require.Len(t, spec.Images[0].Metadatas, 1)
	assert.Equal(t, "graffiti", spec.Images[0].Metadatas[0].Type)
}

func TestGetEventNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/v1/event/9999")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(s, http.MethodGet, "/api/v1/event/not-a-number")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEvents(t *testing.T) {
	s, db := newTestServer(t)
	seedEvent(t, db, 1.0, 1.0)
	seedEvent(t, db, 2.0, 2.0)
	seedEvent(t, db, 3.0, 3.0)

	w := doRequest(s, http.MethodGet, "/api/v1/events?start=0&limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dao.ListEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp.Total)
	assert.Len(t, resp.Events, 2)
}

func TestDeleteEventRemovesGraph(t *testing.T) {
	s, db := newTestServer(t)
	doomed := seedEvent(t, db, 1.0, 1.0)
	seedEvent(t, db, 2.0, 2.0)

	w := doRequest(s, http.MethodDelete, "/api/v1/event/"+strconv.Itoa(doomed.Id))
	require.Equal(t, http.StatusNoContent, w.Code)

	var eventCount, imageCount, metadataCount, taskCount int64
	require.NoError(t, db.Model(&model.DetectionEvent{}).Count(&eventCount).Error)
	require.NoError(t, db.Model(&model.DetectionImage{}).Count(&imageCount).Error)
	require.NoError(t, db.Model(&model.DetectionMetadata{}).Count(&metadataCount).Error)
	require.NoError(t, db.Model(&model.Task{}).Count(&taskCount).Error)
	assert.EqualValues(t, 1, eventCount)
	assert.EqualValues(t, 1, imageCount)
	assert.EqualValues(t, 1, metadataCount)
	assert.EqualValues(t, 1, taskCount)
}

func TestListDetectors(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/v1/detectors")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Detectors []string `json:"detectors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"dino", "yolo-combined"}, resp.Detectors)
}
