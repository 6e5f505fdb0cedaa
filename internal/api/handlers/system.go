package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pestvision/internal/queue"
	"github.com/your-org/pestvision/internal/storage"
)

type SystemHandler struct {
	db        *storage.PostgresStore
	snapshots *storage.SnapshotStore
	producer  *queue.Producer
	streamURL string
}

func NewSystemHandler(db *storage.PostgresStore, snapshots *storage.SnapshotStore, producer *queue.Producer, streamURL string) *SystemHandler {
	return &SystemHandler{db: db, snapshots: snapshots, producer: producer, streamURL: streamURL}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.snapshots.Ping(ctx); err != nil {
		checks["minio"] = err.Error()
		healthy = false
	} else {
		checks["minio"] = "ok"
	}

	if err := h.producer.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

// Config exposes the settings the dashboard frontend needs.
func (h *SystemHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streamUrl": h.streamURL})
}
