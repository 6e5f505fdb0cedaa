package spray

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pestvision/internal/models"
)

func detection(confidence float64) *models.Detection {
	return &models.Detection{
		ID:            uuid.New(),
		StreamID:      "cam-1",
		PestType:      "aphid",
		PestCount:     3,
		MaxConfidence: confidence,
	}
}

func TestEvaluateBelowThresholdNeverFires(t *testing.T) {
	g := NewGate(0.75, 30*time.Second)

	for _, conf := range []float64{0, 0.1, 0.5, 0.749} {
		intent, fired := g.Evaluate(detection(conf))
		assert.False(t, fired, "confidence %v must not fire", conf)
		assert.Nil(t, intent)
	}
}

func TestEvaluateFiresAndRecordsIntent(t *testing.T) {
	g := NewGate(0.75, 30*time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	d := detection(0.9)
	intent, fired := g.Evaluate(d)
	require.True(t, fired)
	assert.Equal(t, now, intent.TriggeredAt)
	assert.Equal(t, "confidence >= 0.75", intent.Reason)
	assert.Equal(t, 0.9, intent.Confidence)
	assert.Equal(t, d.ID, intent.DetectionID)
}

func TestEvaluateCooldownSequence(t *testing.T) {
	g := NewGate(0.75, 30*time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var offset time.Duration
	g.now = func() time.Time { return base.Add(offset) }

	// D1 at t=0s, confidence 0.9: fires.
	offset = 0
	_, fired := g.Evaluate(detection(0.9))
	assert.True(t, fired)

	// D2 at t=10s, confidence 0.95: suppressed by cooldown.
	offset = 10 * time.Second
	_, fired = g.Evaluate(detection(0.95))
	assert.False(t, fired)

	// D3 at t=40s, confidence 0.8: fires again.
	offset = 40 * time.Second
	intent, fired := g.Evaluate(detection(0.8))
	require.True(t, fired)
	assert.Equal(t, base.Add(40*time.Second), intent.TriggeredAt)
}

func TestEvaluateSpacingUnderIncreasingClock(t *testing.T) {
	g := NewGate(0.75, 30*time.Second)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var offset time.Duration
	g.now = func() time.Time { return base.Add(offset) }

	var fires []time.Time
	for i := 0; i < 100; i++ {
		offset = time.Duration(i) * 7 * time.Second
		if intent, ok := g.Evaluate(detection(0.9)); ok {
			fires = append(fires, intent.TriggeredAt)
		}
	}

	require.NotEmpty(t, fires)
	for i := 1; i < len(fires); i++ {
		assert.GreaterOrEqual(t, fires[i].Sub(fires[i-1]), 30*time.Second)
	}
}

func TestEvaluateConcurrentCallersSingleFire(t *testing.T) {
	g := NewGate(0.75, 30*time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fires int
	)
	start := make(chan struct{})
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.Evaluate(detection(0.95)); ok {
				mu.Lock()
				fires++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, fires, "exactly one of 100 simultaneous detections may fire")
}
