package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/pestvision/internal/actuator"
	"github.com/your-org/pestvision/internal/api"
	"github.com/your-org/pestvision/internal/config"
	"github.com/your-org/pestvision/internal/live"
	"github.com/your-org/pestvision/internal/observability"
	"github.com/your-org/pestvision/internal/pipeline"
	"github.com/your-org/pestvision/internal/queue"
	"github.com/your-org/pestvision/internal/spray"
	"github.com/your-org/pestvision/internal/storage"
	"github.com/your-org/pestvision/internal/summary"
	"github.com/your-org/pestvision/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting PestVision API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	snapshots, err := storage.NewSnapshotStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := snapshots.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// Live fan-out hub
	hub := live.NewHub()

	// Summarizer and spray controller collaborators
	summarizer := summary.NewClient(cfg.AI.Gemini)
	if summarizer.Enabled() {
		slog.Info("gemini summarizer enabled", "model", cfg.AI.Gemini.Model)
	} else {
		slog.Info("gemini summarizer disabled (no API key)")
	}
	sprayClient := actuator.NewClient(cfg.Spray.ControllerURL)

	gate := spray.NewGate(cfg.Spray.ConfidenceThreshold, cfg.Spray.Cooldown())
	pipe := pipeline.New(db, summarizer, sprayClient, hub, gate, cfg.Server.RecentCap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ingest envelopes arriving over NATS alongside the REST path.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create detection consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeDetections(ctx, "api-detections", func(ctx context.Context, msg jetstream.Msg) error {
		var env dto.DetectionEnvelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			return err
		}
		if err := env.Validate(); err != nil {
			return fmt.Errorf("invalid envelope: %w", err)
		}
		_, err := pipe.Ingest(ctx, env)
		return err
	})
	if err != nil {
		slog.Warn("start detection consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Pipeline:  pipe,
		DB:        db,
		Snapshots: snapshots,
		Producer:  producer,
		Hub:       hub,
		StreamURL: cfg.Vision.StreamURL,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
