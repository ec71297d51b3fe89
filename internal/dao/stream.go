package dao

import "streetsight/internal/model"

// Live Channel commands. A session accepts one start command and may
// receive a cancel command while the route is running.
const (
	ActionStart  = "start"
	ActionCancel = "cancel"
)

type StreamCommand struct {
	Action string              `json:"action" validate:"required,oneof=start cancel"`
	Start  *StartStreamRequest `json:"start,omitempty"`
}

// StartStreamRequest is the start command payload. Field names are the
// wire contract for existing clients.
type StartStreamRequest struct {
	UserId       int     `json:"user_id" validate:"required,gt=0"`
	StartLat     float64 `json:"start_lat" validate:"min=-90,max=90"`
	StartLon     float64 `json:"start_lon" validate:"min=-180,max=180"`
	EndLat       float64 `json:"end_lat" validate:"min=-90,max=90"`
	EndLon       float64 `json:"end_lon" validate:"min=-180,max=180"`
	NumPoints    int     `json:"num_points" validate:"required,gte=1,lte=500"`
	DetectorName string  `json:"detector_name" validate:"required"`
}

// StreamProgress is emitted once per (coordinate, heading) unit, in
// completion order. Seq is the submission index so clients can reorder
// when the pipeline runs more than one worker.
type StreamProgress struct {
	Type      string    `json:"type"`
	Seq       int       `json:"seq"`
	Direction string    `json:"direction"`
	URL       string    `json:"url"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Detected  bool      `json:"detected"`
	Boxes     [][4]int  `json:"boxes"`
	Labels    []string  `json:"labels"`
	Scores    []float32 `json:"scores"`
	Error     string    `json:"error,omitempty"`
}

// StreamDone closes a route: every unit has either emitted progress or
// been cancelled.
type StreamDone struct {
	Type          string `json:"type"`
	TotalUnits    int    `json:"total_units"`
	DetectedUnits int    `json:"detected_units"`
	ErroredUnits  int    `json:"errored_units"`
	Cancelled     bool   `json:"cancelled"`
}

type StreamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

const (
	MessageTypeProgress = "progress"
	MessageTypeDone     = "done"
	MessageTypeError    = "error"
)

// TaskMessage is published to NSQ for the task-assignment system, one
// message per task created by the aggregator.
type TaskMessage struct {
	TaskId     int     `json:"task_id"`
	MetadataId int     `json:"metadata_id"`
	EventId    int     `json:"event_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Label      string  `json:"label"`
	Type       string  `json:"type"`
	ImageURL   string  `json:"image_url"`
	Timestamp  int64   `json:"timestamp"`
}

type EventSpec struct {
	Id        int         `json:"id"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Timestamp string      `json:"timestamp"`
	Street    string      `json:"street"`
	City      string      `json:"city"`
	State     string      `json:"state"`
	Zipcode   string      `json:"zipcode"`
	Images    []ImageSpec `json:"images,omitempty"`
}

type ImageSpec struct {
	Id        int            `json:"id"`
	Direction string         `json:"direction"`
	ImageURL  string         `json:"image_url"`
	Metadatas []MetadataSpec `json:"metadatas,omitempty"`
}

type MetadataSpec struct {
	Id      int     `json:"id"`
	Box     [4]int  `json:"box"`
	Label   string  `json:"label"`
	Score   float32 `json:"score"`
	Type    string  `json:"type"`
	Caption string  `json:"caption,omitempty"`
}

func FromEventModel(event *model.DetectionEvent) *EventSpec {
	spec := &EventSpec{
		Id:        event.Id,
		Latitude:  event.Latitude,
		Longitude: event.Longitude,
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Street:    event.Street,
		City:      event.City,
		State:     event.State,
		Zipcode:   event.Zipcode,
	}
	for i := range event.Images {
		img := &event.Images[i]
		imgSpec := ImageSpec{
			Id:        img.Id,
			Direction: string(img.Direction),
			ImageURL:  img.ImageURL,
		}
		for _, md := range img.Metadatas {
			imgSpec.Metadatas = append(imgSpec.Metadatas, MetadataSpec{
				Id:      md.Id,
				Box:     [4]int{md.X1, md.Y1, md.X2, md.Y2},
				Label:   md.Label,
				Score:   md.Score,
				Type:    string(md.Type),
				Caption: md.Caption,
			})
		}
		spec.Images = append(spec.Images, imgSpec)
	}
	return spec
}

type ListEventsResponse struct {
	Total  int64       `json:"total"`
	Events []EventSpec `json:"events"`
}
