// Package pipeline orchestrates end-to-end processing of one detection
// envelope: summarize, persist, gate, actuate, fan out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/your-org/pestvision/internal/mapping"
	"github.com/your-org/pestvision/internal/models"
	"github.com/your-org/pestvision/internal/observability"
	"github.com/your-org/pestvision/internal/spray"
	"github.com/your-org/pestvision/pkg/dto"
)

// Store is the persistence collaborator.
type Store interface {
	SaveDetection(ctx context.Context, d *models.Detection) error
	SaveSprayEvent(ctx context.Context, ev *models.SprayEvent) error
	RecentDetections(ctx context.Context, limit int) ([]models.Detection, error)
	RecentSprayEvents(ctx context.Context, limit int) ([]models.SprayEvent, error)
}

// Summarizer produces an optional natural-language synopsis of a detection.
type Summarizer interface {
	Summarize(ctx context.Context, d *models.Detection) (string, bool)
}

// Actuator fires the physical spray controller.
type Actuator interface {
	Trigger(ctx context.Context, d *models.Detection) error
}

// Publisher fans processed events out to live subscribers.
type Publisher interface {
	Publish(event dto.LiveEvent)
}

type Pipeline struct {
	store      Store
	summarizer Summarizer
	actuator   Actuator
	publisher  Publisher
	gate       *spray.Gate
	recentCap  int
}

func New(store Store, summarizer Summarizer, act Actuator, pub Publisher, gate *spray.Gate, recentCap int) *Pipeline {
	if recentCap <= 0 {
		recentCap = 50
	}
	return &Pipeline{
		store:      store,
		summarizer: summarizer,
		actuator:   act,
		publisher:  pub,
		gate:       gate,
		recentCap:  recentCap,
	}
}

// Ingest processes one inbound envelope. Only a failure to persist the
// detection itself aborts the call; a failing summarizer, spray-event save,
// or actuator degrades the result instead. Exactly one live event is
// published per successful ingestion.
func (p *Pipeline) Ingest(ctx context.Context, env dto.DetectionEnvelope) (*models.ProcessingResult, error) {
	start := time.Now()

	d := mapping.DetectionFromEnvelope(env)

	if text, ok := p.summarizer.Summarize(ctx, d); ok {
		text = truncateSummary(text)
		d.Summary = &text
	}

	if err := p.store.SaveDetection(ctx, d); err != nil {
		return nil, fmt.Errorf("persist detection: %w", err)
	}
	observability.DetectionsIngested.WithLabelValues(d.StreamID).Inc()

	var sprayEvent *models.SprayEvent
	if intent, ok := p.gate.Evaluate(d); ok {
		ev := &models.SprayEvent{
			TriggeredAt: intent.TriggeredAt,
			Reason:      intent.Reason,
			Confidence:  intent.Confidence,
			DetectionID: intent.DetectionID,
		}
		if err := p.store.SaveSprayEvent(ctx, ev); err != nil {
			slog.Error("persist spray event", "detection_id", d.ID, "error", err)
		} else {
			sprayEvent = ev
			if err := p.actuator.Trigger(ctx, d); err != nil {
				slog.Error("spray actuation failed", "detection_id", d.ID, "error", err)
			}
		}
	}

	result := &models.ProcessingResult{Detection: d, SprayEvent: sprayEvent}
	p.publisher.Publish(mapping.LiveEvent(result))

	observability.IngestDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// RecentDetections returns up to min(limit, server cap) detections as views,
// newest first.
func (p *Pipeline) RecentDetections(ctx context.Context, limit int) ([]dto.DetectionView, error) {
	detections, err := p.store.RecentDetections(ctx, p.recentCap)
	if err != nil {
		return nil, err
	}
	detections = clamp(detections, limit, p.recentCap)

	views := make([]dto.DetectionView, 0, len(detections))
	for i := range detections {
		views = append(views, mapping.DetectionView(&detections[i]))
	}
	return views, nil
}

// RecentSprayEvents returns up to min(limit, server cap) spray events as
// views, newest first.
func (p *Pipeline) RecentSprayEvents(ctx context.Context, limit int) ([]dto.SprayEventView, error) {
	events, err := p.store.RecentSprayEvents(ctx, p.recentCap)
	if err != nil {
		return nil, err
	}
	events = clamp(events, limit, p.recentCap)

	views := make([]dto.SprayEventView, 0, len(events))
	for i := range events {
		views = append(views, *mapping.SprayEventView(&events[i]))
	}
	return views, nil
}

func clamp[T any](items []T, limit, serverCap int) []T {
	if limit <= 0 || limit > serverCap {
		limit = serverCap
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

// truncateSummary caps the summary at MaxSummaryLength characters. Cutting
// on a rune boundary keeps the result valid UTF-8; a byte slice could split
// a multi-byte rune and the detection insert would then be rejected.
func truncateSummary(text string) string {
	if utf8.RuneCountInString(text) <= models.MaxSummaryLength {
		return text
	}
	return string([]rune(text)[:models.MaxSummaryLength])
}
