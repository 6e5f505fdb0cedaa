package spray

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pestvision/internal/models"
	"github.com/your-org/pestvision/internal/observability"
)

// Intent is a fire decision produced by the gate. The orchestrator turns it
// into a persisted SprayEvent and an actuator call; the gate itself has no
// side effects beyond its cooldown timestamp.
type Intent struct {
	TriggeredAt time.Time
	Reason      string
	Confidence  float64
	DetectionID uuid.UUID
}

// Gate decides whether a detection fires a spray action. It holds the one
// piece of shared mutable state in the pipeline: the time of the last
// successful fire, guarded by a mutex so the threshold/cooldown check and the
// timestamp update are atomic across concurrent ingestions.
type Gate struct {
	threshold float64
	cooldown  time.Duration

	mu        sync.Mutex
	lastSpray time.Time

	now func() time.Time
}

func NewGate(threshold float64, cooldown time.Duration) *Gate {
	return &Gate{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Evaluate returns a spray intent for the detection, or false when the
// confidence is below threshold or the cooldown window is still open.
// Suppression is strict FIFO: a later detection inside the window never
// preempts an earlier fire, regardless of confidence.
func (g *Gate) Evaluate(d *models.Detection) (*Intent, bool) {
	if d.MaxConfidence < g.threshold {
		slog.Debug("spray skipped: below threshold",
			"detection_id", d.ID,
			"confidence", d.MaxConfidence,
			"threshold", g.threshold,
		)
		observability.SpraysSuppressed.WithLabelValues("threshold").Inc()
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSpray) < g.cooldown {
		slog.Debug("spray skipped: cooldown active",
			"detection_id", d.ID,
			"last_spray", g.lastSpray,
		)
		observability.SpraysSuppressed.WithLabelValues("cooldown").Inc()
		return nil, false
	}
	g.lastSpray = now

	observability.SpraysTriggered.Inc()
	return &Intent{
		TriggeredAt: now,
		Reason:      fmt.Sprintf("confidence >= %v", g.threshold),
		Confidence:  d.MaxConfidence,
		DetectionID: d.ID,
	}, true
}
