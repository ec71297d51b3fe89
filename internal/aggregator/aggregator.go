package aggregator

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"streetsight/internal/detector"
	"streetsight/internal/geocode"
	"streetsight/internal/model"
	"streetsight/pkg/log"
)

// RegisteredTask pairs one created task with the detection it verifies.
type RegisteredTask struct {
	TaskId     int
	MetadataId int
	Label      string
	Type       model.DetectionType
}

// RegisterResult reports what one Register call persisted.
type RegisterResult struct {
	EventId int
	ImageId int
	Tasks   []RegisteredTask
	Skipped int // detections dropped by label classification
}

// Aggregator maps raw detections into the Event/Image/Metadata/Task graph.
type Aggregator struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Register persists one positive image: find-or-create the event at
// (lat, lon), attach one image row, and for every detection insert one
// metadata row plus one unverified task. The whole call runs in a single
// transaction; any persistence error rolls everything back. A detection
// whose label cannot be classified is skipped on its own, the rest of the
// image still persists.
func (a *Aggregator) Register(ctx context.Context, lat, lon float64, addr geocode.Address,
	direction model.Direction, imageURL string, detections []detector.Detection) (*RegisterResult, error) {

	logger := log.GetLogger(ctx)
	result := &RegisterResult{}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := a.findOrCreateEvent(tx, lat, lon, addr)
		if err != nil {
			return err
		}
		result.EventId = event.Id

		image := &model.DetectionImage{
			EventId:   event.Id,
			Direction: direction,
			ImageURL:  imageURL,
		}
		if err := tx.Create(image).Error; err != nil {
			return fmt.Errorf("create image: %w", err)
		}
		result.ImageId = image.Id

		for _, d := range detections {
			detType, err := model.ClassifyLabel(d.Label)
			if err != nil {
				logger.WithError(err).Warnf("skipping detection with unclassifiable label %q", d.Label)
				result.Skipped++
				continue
			}

			metadata := &model.DetectionMetadata{
				ImageId: image.Id,
				X1:      d.Box[0],
				Y1:      d.Box[1],
				X2:      d.Box[2],
				Y2:      d.Box[3],
				Label:   d.Label,
				Score:   d.Score,
				Type:    detType,
				Caption: d.Caption,
			}
			if err := tx.Create(metadata).Error; err != nil {
				return fmt.Errorf("create metadata: %w", err)
			}

			task := &model.Task{
				MetadataId: metadata.Id,
				Status:     model.TaskStatusUnverified,
				CreatedAt:  time.Now().UTC(),
			}
			if err := tx.Create(task).Error; err != nil {
				return fmt.Errorf("create task: %w", err)
			}
			result.Tasks = append(result.Tasks, RegisteredTask{
				TaskId:     task.Id,
				MetadataId: metadata.Id,
				Label:      d.Label,
				Type:       detType,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findOrCreateEvent tolerates the race where two units resolve the same
// coordinate concurrently: a create that trips the unique (lat, lon)
// constraint is retried as a fetch of the winner's row.
func (a *Aggregator) findOrCreateEvent(tx *gorm.DB, lat, lon float64, addr geocode.Address) (*model.DetectionEvent, error) {
	event, err := model.GetEventByCoordinate(tx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("lookup event: %w", err)
	}
	if event != nil {
		return event, nil
	}

	event = &model.DetectionEvent{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: time.Now().UTC(),
		Street:    addr.Street,
		City:      addr.City,
		State:     addr.State,
		Zipcode:   addr.Zipcode,
	}
	if err := tx.Create(event).Error; err != nil {
		existing, lookupErr := model.GetEventByCoordinate(tx, lat, lon)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}
