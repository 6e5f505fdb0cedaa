// Package mapping translates between the wire-level detection/spray
// representations and the internal domain records.
package mapping

import (
	"github.com/your-org/pestvision/internal/models"
	"github.com/your-org/pestvision/pkg/dto"
)

// DetectionFromEnvelope builds an unpersisted detection from an inbound
// envelope. An absent box list becomes an empty one.
func DetectionFromEnvelope(env dto.DetectionEnvelope) *models.Detection {
	p := env.Payload
	boxes := make([]models.BoundingBox, 0, len(p.Boxes))
	for _, b := range p.Boxes {
		boxes = append(boxes, models.BoundingBox{
			X:          b.X,
			Y:          b.Y,
			Width:      b.Width,
			Height:     b.Height,
			Confidence: b.Confidence,
			Label:      b.Label,
			TrackID:    b.TrackID,
		})
	}
	return &models.Detection{
		DetectedAt:    p.DetectedAt,
		StreamID:      p.StreamID,
		ServiceName:   env.ServiceName,
		PestType:      p.PestType,
		PestCount:     p.PestCount,
		MaxConfidence: p.MaxConfidence,
		SnapshotPath:  p.SnapshotPath,
		Boxes:         boxes,
	}
}

// DetectionView maps a persisted detection to its external representation.
func DetectionView(d *models.Detection) dto.DetectionView {
	boxes := make([]dto.BoundingBox, 0, len(d.Boxes))
	for _, b := range d.Boxes {
		boxes = append(boxes, dto.BoundingBox{
			X:          b.X,
			Y:          b.Y,
			Width:      b.Width,
			Height:     b.Height,
			Confidence: b.Confidence,
			Label:      b.Label,
			TrackID:    b.TrackID,
		})
	}
	return dto.DetectionView{
		ID:              d.ID,
		DetectedAt:      d.DetectedAt,
		StreamID:        d.StreamID,
		ServiceName:     d.ServiceName,
		PestType:        d.PestType,
		PestCount:       d.PestCount,
		MaxConfidence:   d.MaxConfidence,
		SnapshotPath:    d.SnapshotPath,
		AnalysisSummary: d.Summary,
		Boxes:           boxes,
	}
}

// DetectionFromView rebuilds a domain record from its external view. The
// identifier is not carried over; storage assigns identifiers.
func DetectionFromView(v dto.DetectionView) *models.Detection {
	boxes := make([]models.BoundingBox, 0, len(v.Boxes))
	for _, b := range v.Boxes {
		boxes = append(boxes, models.BoundingBox{
			X:          b.X,
			Y:          b.Y,
			Width:      b.Width,
			Height:     b.Height,
			Confidence: b.Confidence,
			Label:      b.Label,
			TrackID:    b.TrackID,
		})
	}
	return &models.Detection{
		DetectedAt:    v.DetectedAt,
		StreamID:      v.StreamID,
		ServiceName:   v.ServiceName,
		PestType:      v.PestType,
		PestCount:     v.PestCount,
		MaxConfidence: v.MaxConfidence,
		SnapshotPath:  v.SnapshotPath,
		Summary:       v.AnalysisSummary,
		Boxes:         boxes,
	}
}

// SprayEventView maps a spray decision to its external representation.
func SprayEventView(ev *models.SprayEvent) *dto.SprayEventView {
	if ev == nil {
		return nil
	}
	return &dto.SprayEventView{
		ID:          ev.ID,
		TriggeredAt: ev.TriggeredAt,
		Reason:      ev.Reason,
		Confidence:  ev.Confidence,
		DetectionID: ev.DetectionID,
	}
}

// LiveEvent pairs the external views of a processing result for fan-out.
func LiveEvent(result *models.ProcessingResult) dto.LiveEvent {
	return dto.LiveEvent{
		Detection:  DetectionView(result.Detection),
		SprayEvent: SprayEventView(result.SprayEvent),
	}
}
