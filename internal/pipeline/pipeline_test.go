package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pestvision/internal/models"
	"github.com/your-org/pestvision/internal/spray"
	"github.com/your-org/pestvision/internal/storage"
	"github.com/your-org/pestvision/pkg/dto"
)

type fakeStore struct {
	mu          sync.Mutex
	detections  []models.Detection
	sprayEvents []models.SprayEvent

	failDetectionSave bool
	failSpraySave     bool
}

func (s *fakeStore) SaveDetection(_ context.Context, d *models.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDetectionSave {
		return &storage.Error{Op: "insert detection", Err: errors.New("connection refused")}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	s.detections = append(s.detections, *d)
	return nil
}

func (s *fakeStore) SaveSprayEvent(_ context.Context, ev *models.SprayEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSpraySave {
		return &storage.Error{Op: "insert spray event", Err: errors.New("connection refused")}
	}
	ev.ID = uuid.New()
	s.sprayEvents = append(s.sprayEvents, *ev)
	return nil
}

func (s *fakeStore) RecentDetections(_ context.Context, limit int) ([]models.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Newest first, as the real store orders them.
	out := make([]models.Detection, 0, limit)
	for i := len(s.detections) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.detections[i])
	}
	return out, nil
}

func (s *fakeStore) RecentSprayEvents(_ context.Context, limit int) ([]models.SprayEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SprayEvent, 0, limit)
	for i := len(s.sprayEvents) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.sprayEvents[i])
	}
	return out, nil
}

type fakeSummarizer struct {
	text string
	ok   bool
}

func (f *fakeSummarizer) Summarize(context.Context, *models.Detection) (string, bool) {
	return f.text, f.ok
}

type fakeActuator struct {
	mu       sync.Mutex
	triggers int
	err      error
}

func (f *fakeActuator) Trigger(context.Context, *models.Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.err
}

func (f *fakeActuator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

type capturePublisher struct {
	mu     sync.Mutex
	events []dto.LiveEvent
}

func (p *capturePublisher) Publish(ev dto.LiveEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePublisher) published() []dto.LiveEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dto.LiveEvent(nil), p.events...)
}

func envelope(confidence float64) dto.DetectionEnvelope {
	return dto.DetectionEnvelope{
		ServiceName: "vision-service",
		Payload: dto.DetectionEvent{
			FrameID:       1,
			StreamID:      "cam-1",
			DetectedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			PestType:      "aphid",
			PestCount:     2,
			MaxConfidence: confidence,
			Boxes: []dto.BoundingBox{
				{X: 1, Y: 1, Width: 5, Height: 5, Confidence: confidence, Label: "aphid"},
			},
		},
	}
}

func newTestPipeline(store *fakeStore, sum Summarizer, act *fakeActuator, pub *capturePublisher) *Pipeline {
	return New(store, sum, act, pub, spray.NewGate(0.75, 30*time.Second), 50)
}

func TestIngestPersistsGatesAndPublishes(t *testing.T) {
	store := &fakeStore{}
	act := &fakeActuator{}
	pub := &capturePublisher{}
	p := newTestPipeline(store, &fakeSummarizer{}, act, pub)

	result, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)

	require.NotNil(t, result.Detection)
	assert.NotEqual(t, uuid.Nil, result.Detection.ID)
	require.NotNil(t, result.SprayEvent)
	assert.Equal(t, result.Detection.ID, result.SprayEvent.DetectionID)

	assert.Len(t, store.detections, 1)
	assert.Len(t, store.sprayEvents, 1)
	assert.Equal(t, 1, act.count())

	events := pub.published()
	require.Len(t, events, 1, "exactly one live event per ingestion")
	assert.Equal(t, result.Detection.ID, events[0].Detection.ID)
	require.NotNil(t, events[0].SprayEvent)
}

func TestIngestBelowThresholdSkipsSpray(t *testing.T) {
	store := &fakeStore{}
	act := &fakeActuator{}
	pub := &capturePublisher{}
	p := newTestPipeline(store, &fakeSummarizer{}, act, pub)

	result, err := p.Ingest(context.Background(), envelope(0.5))
	require.NoError(t, err)

	assert.Nil(t, result.SprayEvent)
	assert.Empty(t, store.sprayEvents)
	assert.Equal(t, 0, act.count())

	events := pub.published()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].SprayEvent)
}

func TestIngestStorageFailureAborts(t *testing.T) {
	store := &fakeStore{failDetectionSave: true}
	act := &fakeActuator{}
	pub := &capturePublisher{}
	p := newTestPipeline(store, &fakeSummarizer{}, act, pub)

	_, err := p.Ingest(context.Background(), envelope(0.9))
	require.Error(t, err)

	var storageErr *storage.Error
	assert.ErrorAs(t, err, &storageErr)
	assert.Empty(t, pub.published(), "no live event for an aborted ingestion")
	assert.Equal(t, 0, act.count())
}

func TestIngestSpraySaveFailureDegrades(t *testing.T) {
	store := &fakeStore{failSpraySave: true}
	act := &fakeActuator{}
	pub := &capturePublisher{}
	p := newTestPipeline(store, &fakeSummarizer{}, act, pub)

	result, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)

	assert.Nil(t, result.SprayEvent)
	assert.Equal(t, 0, act.count(), "no actuation without a recorded decision")
	assert.Len(t, pub.published(), 1)
}

func TestIngestActuatorFailureAbsorbed(t *testing.T) {
	store := &fakeStore{}
	act := &fakeActuator{err: errors.New("controller offline")}
	pub := &capturePublisher{}
	p := newTestPipeline(store, &fakeSummarizer{}, act, pub)

	result, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)
	require.NotNil(t, result.SprayEvent, "a failed physical trigger keeps the recorded decision")
	assert.Len(t, store.sprayEvents, 1)
}

func TestIngestAttachesTruncatedSummary(t *testing.T) {
	long := strings.Repeat("a", models.MaxSummaryLength+1)
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeSummarizer{text: long, ok: true}, &fakeActuator{}, &capturePublisher{})

	result, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)

	require.NotNil(t, result.Detection.Summary)
	assert.Len(t, *result.Detection.Summary, models.MaxSummaryLength)
}

func TestIngestTruncatesMultibyteSummaryOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("₹", models.MaxSummaryLength+1)
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeSummarizer{text: long, ok: true}, &fakeActuator{}, &capturePublisher{})

	result, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)

	require.NotNil(t, result.Detection.Summary)
	got := *result.Detection.Summary
	assert.True(t, utf8.ValidString(got), "truncation must not split a rune")
	assert.Equal(t, models.MaxSummaryLength, utf8.RuneCountInString(got))
}

func TestIngestWithoutSummaryProceeds(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeSummarizer{ok: false}, &fakeActuator{}, &capturePublisher{})

	result, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)
	assert.Nil(t, result.Detection.Summary)
}

func TestIngestEmptyBoxList(t *testing.T) {
	env := envelope(0.9)
	env.Payload.Boxes = nil

	store := &fakeStore{}
	p := newTestPipeline(store, &fakeSummarizer{}, &fakeActuator{}, &capturePublisher{})

	result, err := p.Ingest(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, result.Detection.Boxes)
	assert.Empty(t, result.Detection.Boxes)
}

func TestIngestConcurrentQualifyingDetectionsSingleSpray(t *testing.T) {
	store := &fakeStore{}
	act := &fakeActuator{}
	pub := &capturePublisher{}
	p := newTestPipeline(store, &fakeSummarizer{}, act, pub)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := p.Ingest(context.Background(), envelope(0.95))
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Len(t, store.detections, 100)
	assert.Len(t, store.sprayEvents, 1, "cooldown admits exactly one spray")
	assert.Equal(t, 1, act.count())
	assert.Len(t, pub.published(), 100)
}

func TestRecentDetectionsClampedAndIdempotent(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeSummarizer{}, &fakeActuator{}, &capturePublisher{})

	for i := 0; i < 60; i++ {
		env := envelope(0.1)
		env.Payload.DetectedAt = env.Payload.DetectedAt.Add(time.Duration(i) * time.Minute)
		_, err := p.Ingest(context.Background(), env)
		require.NoError(t, err)
	}

	views, err := p.RecentDetections(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, views, 10)

	// Newest first.
	for i := 1; i < len(views); i++ {
		assert.True(t, !views[i-1].DetectedAt.Before(views[i].DetectedAt))
	}

	// Limit beyond the server cap is clamped to the cap.
	views, err = p.RecentDetections(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, views, 50)

	again, err := p.RecentDetections(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, views, again, "repeated reads with no writes are identical")
}

func TestRecentSprayEvents(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeSummarizer{}, &fakeActuator{}, &capturePublisher{})

	_, err := p.Ingest(context.Background(), envelope(0.9))
	require.NoError(t, err)

	views, err := p.RecentSprayEvents(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "confidence >= 0.75", views[0].Reason)
}
