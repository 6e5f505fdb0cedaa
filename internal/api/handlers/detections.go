package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/pestvision/internal/live"
	"github.com/your-org/pestvision/internal/mapping"
	"github.com/your-org/pestvision/internal/pipeline"
	"github.com/your-org/pestvision/internal/storage"
	"github.com/your-org/pestvision/pkg/dto"
)

type DetectionHandler struct {
	pipeline  *pipeline.Pipeline
	db        *storage.PostgresStore
	snapshots *storage.SnapshotStore
	hub       *live.Hub
}

func NewDetectionHandler(p *pipeline.Pipeline, db *storage.PostgresStore, snapshots *storage.SnapshotStore, hub *live.Hub) *DetectionHandler {
	return &DetectionHandler{pipeline: p, db: db, snapshots: snapshots, hub: hub}
}

// Ingest accepts one detection envelope from the vision service.
func (h *DetectionHandler) Ingest(c *gin.Context) {
	var env dto.DetectionEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), env)
	if err != nil {
		var storageErr *storage.Error
		if errors.As(err, &storageErr) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Location", "/v1/detections/"+result.Detection.ID.String())
	c.JSON(http.StatusCreated, mapping.LiveEvent(result))
}

// Recent lists the most recent detections, newest first.
func (h *DetectionHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	views, err := h.pipeline.RecentDetections(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, views)
}

// RecentSprays lists the most recent spray decisions, newest first.
func (h *DetectionHandler) RecentSprays(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	views, err := h.pipeline.RecentSprayEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, views)
}

// Get returns one detection by id.
func (h *DetectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection id"})
		return
	}

	d, err := h.db.DetectionByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection not found"})
		return
	}
	c.JSON(http.StatusOK, mapping.DetectionView(d))
}

// Snapshot proxies the detection's frame snapshot from MinIO.
func (h *DetectionHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection id"})
		return
	}

	d, err := h.db.DetectionByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if d == nil || d.SnapshotPath == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	data, err := h.snapshots.GetSnapshot(c.Request.Context(), *d.SnapshotPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Stream delivers the live feed as server-sent events until the client
// disconnects.
func (h *DetectionHandler) Stream(c *gin.Context) {
	sub := h.hub.Subscribe()
	defer sub.Close()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent("message", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
