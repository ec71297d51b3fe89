package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Direction string

const (
	DirectionFront Direction = "front"
	DirectionBack  Direction = "back"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionFront, DirectionBack, DirectionLeft, DirectionRight:
		return true
	}
	return false
}

// DetectionEvent is one physical location where at least one anomaly was
// ever detected. (latitude, longitude) is unique at 6 decimal places; a
// later detection at the same coordinate attaches to the existing event.
type DetectionEvent struct {
	Id        int       `json:"id" gorm:"primaryKey"`
	Latitude  float64   `json:"latitude" gorm:"type:decimal(9,6);not null;uniqueIndex:uq_lat_lon"`
	Longitude float64   `json:"longitude" gorm:"type:decimal(9,6);not null;uniqueIndex:uq_lat_lon"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;autoCreateTime"`
	Street    string    `json:"street" gorm:"size:100"`
	City      string    `json:"city" gorm:"size:100"`
	State     string    `json:"state" gorm:"size:100"`
	Zipcode   string    `json:"zipcode" gorm:"size:100"`

	Images []DetectionImage `json:"images,omitempty" gorm:"foreignKey:EventId;constraint:OnDelete:CASCADE"`
}

func (DetectionEvent) TableName() string { return "detection_events" }

// DetectionImage is one captured frame (one heading, one visit) belonging
// to exactly one event.
type DetectionImage struct {
	Id        int       `json:"id" gorm:"primaryKey"`
	EventId   int       `json:"event_id" gorm:"index;not null"`
	Direction Direction `json:"direction" gorm:"size:10;not null"`
	ImageURL  string    `json:"image_url" gorm:"column:image_url;size:500;not null"`

	Metadatas []DetectionMetadata `json:"metadatas,omitempty" gorm:"foreignKey:ImageId;constraint:OnDelete:CASCADE"`
}

func (DetectionImage) TableName() string { return "detection_images" }

// DetectionMetadata is one detected object instance within one image.
type DetectionMetadata struct {
	Id      int           `json:"id" gorm:"primaryKey"`
	ImageId int           `json:"image_id" gorm:"index;not null"`
	X1      int           `json:"x1" gorm:"column:x1_loc;not null"`
	Y1      int           `json:"y1" gorm:"column:y1_loc;not null"`
	X2      int           `json:"x2" gorm:"column:x2_loc;not null"`
	Y2      int           `json:"y2" gorm:"column:y2_loc;not null"`
	Label   string        `json:"label" gorm:"size:50;not null"`
	Score   float32       `json:"score" gorm:"not null"`
	Type    DetectionType `json:"type" gorm:"size:20;not null"`
	Caption string        `json:"caption,omitempty" gorm:"size:500"`

	Tasks []Task `json:"tasks,omitempty" gorm:"foreignKey:MetadataId;constraint:OnDelete:CASCADE"`
}

func (DetectionMetadata) TableName() string { return "detection_metadata" }

func GetEventByCoordinate(db *gorm.DB, lat, lon float64) (*DetectionEvent, error) {
	var event DetectionEvent
	if err := db.Where("latitude = ? AND longitude = ?", lat, lon).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func GetEventById(db *gorm.DB, id int) (*DetectionEvent, error) {
	var event DetectionEvent
	err := db.Preload("Images").Preload("Images.Metadatas").Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func ListEvents(db *gorm.DB, start, limit int) ([]DetectionEvent, int64, error) {
	var events []DetectionEvent
	var total int64
	if err := db.Model(&DetectionEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Images").Offset(start).Limit(limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// DeleteEvent removes an event and, through the cascading constraints, all
// of its images, their metadata and the tasks referencing that metadata.
// SQLite test databases do not always enforce foreign keys, so the walk is
// done explicitly inside one transaction.
func DeleteEvent(db *gorm.DB, event *DetectionEvent) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var imageIds []int
		if err := tx.Model(&DetectionImage{}).Where("event_id = ?", event.Id).
			Pluck("id", &imageIds).Error; err != nil {
			return err
		}
		if len(imageIds) > 0 {
			var metadataIds []int
			if err := tx.Model(&DetectionMetadata{}).Where("image_id IN ?", imageIds).
				Pluck("id", &metadataIds).Error; err != nil {
				return err
			}
			if len(metadataIds) > 0 {
				if err := tx.Where("metadata_id IN ?", metadataIds).Delete(&Task{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", metadataIds).Delete(&DetectionMetadata{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("id IN ?", imageIds).Delete(&DetectionImage{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(event).Error
	})
}
