package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxSummaryLength caps the AI-generated summary attached to a detection.
const MaxSummaryLength = 2000

// Detection is one reported pest observation from the vision pipeline.
// It is immutable once persisted; the ID is assigned by storage.
type Detection struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	DetectedAt    time.Time     `json:"detected_at" db:"detected_at"`
	StreamID      string        `json:"stream_id" db:"stream_id"`
	ServiceName   string        `json:"service_name" db:"service_name"`
	PestType      string        `json:"pest_type" db:"pest_type"`
	PestCount     int           `json:"pest_count" db:"pest_count"`
	MaxConfidence float64       `json:"max_confidence" db:"max_confidence"`
	SnapshotPath  *string       `json:"snapshot_path,omitempty" db:"snapshot_path"`
	Summary       *string       `json:"summary,omitempty" db:"summary"`
	Boxes         []BoundingBox `json:"boxes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// BoundingBox locates one detected pest within a frame. Boxes belong to
// exactly one Detection and have no lifecycle of their own.
type BoundingBox struct {
	X          int     `json:"x" db:"x"`
	Y          int     `json:"y" db:"y"`
	Width      int     `json:"width" db:"width"`
	Height     int     `json:"height" db:"height"`
	Confidence float64 `json:"confidence" db:"confidence"`
	Label      string  `json:"label" db:"label"`
	TrackID    *int    `json:"track_id,omitempty" db:"track_id"`
}

// SprayEvent records one spray-actuation decision. Zero or one per Detection.
type SprayEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
	Reason      string    `json:"reason" db:"reason"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	DetectionID uuid.UUID `json:"detection_id" db:"detection_id"`
}

// ProcessingResult is what the pipeline hands back for one ingested envelope.
// SprayEvent is nil when the gate decided not to fire.
type ProcessingResult struct {
	Detection  *Detection
	SprayEvent *SprayEvent
}
