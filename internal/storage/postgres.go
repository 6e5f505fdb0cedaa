package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/pestvision/internal/config"
	"github.com/your-org/pestvision/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveDetection persists the detection and its boxes in one transaction and
// assigns the record identifier. The detection must not be modified after a
// successful save.
func (s *PostgresStore) SaveDetection(ctx context.Context, d *models.Detection) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("begin detection tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO detections (id, detected_at, stream_id, service_name, pest_type, pest_count, max_confidence, snapshot_path, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.DetectedAt, d.StreamID, d.ServiceName, d.PestType, d.PestCount,
		d.MaxConfidence, d.SnapshotPath, d.Summary, d.CreatedAt)
	if err != nil {
		return wrap("insert detection", err)
	}

	if len(d.Boxes) > 0 {
		batch := &pgx.Batch{}
		for i, box := range d.Boxes {
			batch.Queue(
				`INSERT INTO detection_boxes (detection_id, seq, x, y, width, height, confidence, label, track_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				d.ID, i, box.X, box.Y, box.Width, box.Height, box.Confidence, box.Label, box.TrackID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return wrap("insert detection boxes", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("commit detection tx", err)
	}
	return nil
}

// SaveSprayEvent persists a spray decision and assigns its identifier.
func (s *PostgresStore) SaveSprayEvent(ctx context.Context, ev *models.SprayEvent) error {
	ev.ID = uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO spray_events (id, triggered_at, reason, confidence, detection_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.TriggeredAt, ev.Reason, ev.Confidence, ev.DetectionID)
	return wrap("insert spray event", err)
}

// DetectionByID returns one detection with its boxes, or nil when absent.
func (s *PostgresStore) DetectionByID(ctx context.Context, id uuid.UUID) (*models.Detection, error) {
	d := &models.Detection{Boxes: []models.BoundingBox{}}
	err := s.pool.QueryRow(ctx,
		`SELECT id, detected_at, stream_id, service_name, pest_type, pest_count, max_confidence, snapshot_path, summary, created_at
		 FROM detections WHERE id = $1`, id,
	).Scan(&d.ID, &d.DetectedAt, &d.StreamID, &d.ServiceName, &d.PestType,
		&d.PestCount, &d.MaxConfidence, &d.SnapshotPath, &d.Summary, &d.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, wrap("get detection", err)
	}

	boxes, err := s.boxesFor(ctx, []uuid.UUID{d.ID})
	if err != nil {
		return nil, err
	}
	if b, ok := boxes[d.ID]; ok {
		d.Boxes = b
	}
	return d, nil
}

// RecentDetections returns at most limit detections, newest first, with their
// boxes attached in frame order.
func (s *PostgresStore) RecentDetections(ctx context.Context, limit int) ([]models.Detection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, detected_at, stream_id, service_name, pest_type, pest_count, max_confidence, snapshot_path, summary, created_at
		 FROM detections ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("query recent detections", err)
	}
	defer rows.Close()

	var detections []models.Detection
	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ID, &d.DetectedAt, &d.StreamID, &d.ServiceName,
			&d.PestType, &d.PestCount, &d.MaxConfidence, &d.SnapshotPath,
			&d.Summary, &d.CreatedAt); err != nil {
			return nil, wrap("scan detection", err)
		}
		d.Boxes = []models.BoundingBox{}
		detections = append(detections, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate detections", err)
	}
	if len(detections) == 0 {
		return detections, nil
	}

	boxes, err := s.boxesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range detections {
		if b, ok := boxes[detections[i].ID]; ok {
			detections[i].Boxes = b
		}
	}
	return detections, nil
}

func (s *PostgresStore) boxesFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.BoundingBox, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT detection_id, x, y, width, height, confidence, label, track_id
		 FROM detection_boxes WHERE detection_id = ANY($1) ORDER BY detection_id, seq`, ids)
	if err != nil {
		return nil, wrap("query detection boxes", err)
	}
	defer rows.Close()

	boxes := make(map[uuid.UUID][]models.BoundingBox)
	for rows.Next() {
		var (
			id  uuid.UUID
			box models.BoundingBox
		)
		if err := rows.Scan(&id, &box.X, &box.Y, &box.Width, &box.Height,
			&box.Confidence, &box.Label, &box.TrackID); err != nil {
			return nil, wrap("scan detection box", err)
		}
		boxes[id] = append(boxes[id], box)
	}
	return boxes, wrap("iterate detection boxes", rows.Err())
}

// RecentSprayEvents returns at most limit spray events, newest first.
func (s *PostgresStore) RecentSprayEvents(ctx context.Context, limit int) ([]models.SprayEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, triggered_at, reason, confidence, detection_id
		 FROM spray_events ORDER BY triggered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("query recent spray events", err)
	}
	defer rows.Close()

	var events []models.SprayEvent
	for rows.Next() {
		var ev models.SprayEvent
		if err := rows.Scan(&ev.ID, &ev.TriggeredAt, &ev.Reason, &ev.Confidence, &ev.DetectionID); err != nil {
			return nil, wrap("scan spray event", err)
		}
		events = append(events, ev)
	}
	return events, wrap("iterate spray events", rows.Err())
}
