package model

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusUnverified TaskStatus = "unverified"
	TaskStatusVerified   TaskStatus = "verified"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusDiscarded  TaskStatus = "discarded"
)

// Task is one human-verification work item, created 1:1 with each metadata
// row. The pipeline only ever creates tasks in the unverified state; every
// later transition belongs to the task-assignment system.
type Task struct {
	Id            int        `json:"id" gorm:"primaryKey"`
	MetadataId    int        `json:"metadata_id" gorm:"index;not null"`
	WorkerId      *int       `json:"worker_id,omitempty"`
	Status        TaskStatus `json:"status" gorm:"size:20;not null;default:unverified"`
	Notes         string     `json:"notes" gorm:"size:500"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Task) TableName() string { return "tasks" }

func ListTasksByMetadataIds(db *gorm.DB, metadataIds []int) ([]Task, error) {
	var tasks []Task
	if err := db.Where("metadata_id IN ?", metadataIds).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
