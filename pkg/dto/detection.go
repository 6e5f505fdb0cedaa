package dto

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

// BoundingBox is the wire shape of one detected pest box.
type BoundingBox struct {
	X          int     `json:"x" binding:"min=0"`
	Y          int     `json:"y" binding:"min=0"`
	Width      int     `json:"width" binding:"required,min=1"`
	Height     int     `json:"height" binding:"required,min=1"`
	Confidence float64 `json:"confidence" binding:"min=0,max=1"`
	Label      string  `json:"label" binding:"required"`
	TrackID    *int    `json:"trackId,omitempty"`
}

// DetectionEvent is the payload the vision service reports for one frame.
type DetectionEvent struct {
	FrameID       int64         `json:"frameId" binding:"min=0"`
	StreamID      string        `json:"streamId" binding:"required"`
	DetectedAt    time.Time     `json:"detectedAt" binding:"required"`
	PestType      string        `json:"pestType" binding:"required"`
	PestCount     int           `json:"pestCount" binding:"required,min=1"`
	Boxes         []BoundingBox `json:"boxes" binding:"omitempty,dive"`
	MaxConfidence float64       `json:"maxConfidence" binding:"min=0,max=1"`
	SnapshotPath  *string       `json:"snapshotPath,omitempty"`
}

// DetectionEnvelope wraps a detection event with its originating service.
type DetectionEnvelope struct {
	ServiceName string         `json:"serviceName" binding:"required"`
	Payload     DetectionEvent `json:"payload" binding:"required"`
}

// Validate applies the same binding rules the HTTP layer enforces. Ingestion
// paths that bypass gin, such as the NATS consumer, call it before processing.
func (e *DetectionEnvelope) Validate() error {
	return binding.Validator.ValidateStruct(e)
}

// DetectionView is the external read-side representation of a detection.
type DetectionView struct {
	ID              uuid.UUID     `json:"id"`
	DetectedAt      time.Time     `json:"detectedAt"`
	StreamID        string        `json:"streamId"`
	ServiceName     string        `json:"serviceName"`
	PestType        string        `json:"pestType"`
	PestCount       int           `json:"pestCount"`
	MaxConfidence   float64       `json:"maxConfidence"`
	SnapshotPath    *string       `json:"snapshotPath,omitempty"`
	AnalysisSummary *string       `json:"analysisSummary,omitempty"`
	Boxes           []BoundingBox `json:"boxes"`
}

// SprayEventView is the external representation of a spray decision.
type SprayEventView struct {
	ID          uuid.UUID `json:"id"`
	TriggeredAt time.Time `json:"triggeredAt"`
	Reason      string    `json:"reason"`
	Confidence  float64   `json:"confidence"`
	DetectionID uuid.UUID `json:"detectionId"`
}

// LiveEvent pairs a processed detection with its optional spray decision.
// It exists only on the fan-out path and is never persisted.
type LiveEvent struct {
	Detection  DetectionView   `json:"detection"`
	SprayEvent *SprayEventView `json:"sprayEvent,omitempty"`
}
