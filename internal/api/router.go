package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pestvision/internal/api/handlers"
	"github.com/your-org/pestvision/internal/api/ws"
	"github.com/your-org/pestvision/internal/live"
	"github.com/your-org/pestvision/internal/pipeline"
	"github.com/your-org/pestvision/internal/queue"
	"github.com/your-org/pestvision/internal/storage"
)

type RouterConfig struct {
	APIKey    string
	Pipeline  *pipeline.Pipeline
	DB        *storage.PostgresStore
	Snapshots *storage.SnapshotStore
	Producer  *queue.Producer
	Hub       *live.Hub
	StreamURL string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Snapshots, cfg.Producer, cfg.StreamURL)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(APIKeyMiddleware(cfg.APIKey))

	// Live feed
	v1.GET("/ws", ws.Handler(cfg.Hub))

	// Detections
	detectionH := handlers.NewDetectionHandler(cfg.Pipeline, cfg.DB, cfg.Snapshots, cfg.Hub)
	v1.POST("/detections", detectionH.Ingest)
	v1.GET("/detections/recent", detectionH.Recent)
	v1.GET("/detections/stream", detectionH.Stream)
	v1.GET("/detections/:id", detectionH.Get)
	v1.GET("/detections/:id/snapshot", detectionH.Snapshot)
	v1.GET("/sprays/recent", detectionH.RecentSprays)

	// Reports
	reportH := handlers.NewReportHandler(cfg.Pipeline)
	v1.GET("/reports/detections.xlsx", reportH.Export)

	// System config for the dashboard
	v1.GET("/system/config", systemH.Config)

	return r
}
