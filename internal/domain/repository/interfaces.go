package repository

import (
	"context"
	"time"

	"FinShock/internal/domain/models"
)

// AnomalyStore persists detections, one row per anomaly.
type AnomalyStore interface {
	Init(ctx context.Context) error
	SaveDetection(ctx context.Context, d models.Detection) error
	RecentBySymbol(ctx context.Context, symbol string, limit int) ([]models.StoredAnomaly, error)
	Close() error
}

// ResultPublisher emits completed detections to downstream consumers.
type ResultPublisher interface {
	PublishDetection(ctx context.Context, d models.Detection) error
}

// Broadcaster fans completed detections out to live subscribers. It must not
// block the caller.
type Broadcaster interface {
	Broadcast(d models.Detection)
}

// ResultCache memoizes detector output for identical requests.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]models.Anomaly, bool)
	Set(ctx context.Context, key string, anomalies []models.Anomaly)
}

type Metrics interface {
	RecordDetection(source string, types []string)
	RecordError(kind string)
	RecordLatency(op string, d time.Duration)
	RecordCache(hit bool)
}
