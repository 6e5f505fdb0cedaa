// Simulator publishes synthetic detection envelopes to NATS, standing in for
// the vision service during load tests and demos.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/pestvision/internal/config"
	"github.com/your-org/pestvision/internal/observability"
	"github.com/your-org/pestvision/internal/queue"
	"github.com/your-org/pestvision/internal/storage"
	"github.com/your-org/pestvision/pkg/dto"
)

var pestTypes = []string{"aphid", "whitefly", "locust", "thrips", "beetle"}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	streamID := flag.String("stream", "cam-sim", "stream id to report")
	interval := flag.Duration("interval", 2*time.Second, "delay between envelopes")
	count := flag.Int("count", 0, "number of envelopes to publish (0 = until interrupted)")
	withSnapshots := flag.Bool("snapshots", false, "upload a synthetic frame snapshot per envelope")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting detection simulator", "stream", *streamID, "interval", interval.String())

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	var snapshots *storage.SnapshotStore
	if *withSnapshots {
		snapshots, err = storage.NewSnapshotStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := snapshots.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulator stopped", "published", published)
			return
		case <-ticker.C:
			env := randomEnvelope(*streamID, published)
			if snapshots != nil {
				key := fmt.Sprintf("%s/frame-%06d.jpg", *streamID, env.Payload.FrameID)
				if err := snapshots.PutSnapshot(ctx, key, syntheticFrame(), "image/jpeg"); err != nil {
					slog.Warn("upload snapshot", "key", key, "error", err)
				} else {
					env.Payload.SnapshotPath = &key
				}
			}
			if err := producer.PublishEnvelope(ctx, env); err != nil {
				slog.Error("publish envelope", "error", err)
				continue
			}
			published++
			slog.Debug("published envelope",
				"frame", env.Payload.FrameID,
				"pest_type", env.Payload.PestType,
				"confidence", env.Payload.MaxConfidence,
			)
			if *count > 0 && published >= *count {
				slog.Info("simulator done", "published", published)
				return
			}
		}
	}
}

// syntheticFrame renders a small noise image so the snapshot proxy has real
// JPEG bytes to serve.
func syntheticFrame() []byte {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(rand.Intn(256))
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil
	}
	return buf.Bytes()
}

func randomEnvelope(streamID string, frame int) dto.DetectionEnvelope {
	pest := pestTypes[rand.Intn(len(pestTypes))]
	boxCount := 1 + rand.Intn(4)

	boxes := make([]dto.BoundingBox, 0, boxCount)
	maxConf := 0.0
	for i := 0; i < boxCount; i++ {
		conf := 0.3 + rand.Float64()*0.69
		if conf > maxConf {
			maxConf = conf
		}
		track := frame*10 + i
		boxes = append(boxes, dto.BoundingBox{
			X:          rand.Intn(1200),
			Y:          rand.Intn(680),
			Width:      20 + rand.Intn(120),
			Height:     20 + rand.Intn(120),
			Confidence: conf,
			Label:      pest,
			TrackID:    &track,
		})
	}

	return dto.DetectionEnvelope{
		ServiceName: "detection-simulator",
		Payload: dto.DetectionEvent{
			FrameID:       int64(frame),
			StreamID:      streamID,
			DetectedAt:    time.Now().UTC(),
			PestType:      pest,
			PestCount:     boxCount,
			Boxes:         boxes,
			MaxConfidence: maxConf,
		},
	}
}
