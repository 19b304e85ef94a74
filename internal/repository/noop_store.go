package repository

import (
	"context"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
)

// NoopAnomalyStore is used when ClickHouse is disabled.
type NoopAnomalyStore struct{}

func (NoopAnomalyStore) Init(context.Context) error { return nil }

func (NoopAnomalyStore) SaveDetection(context.Context, models.Detection) error { return nil }

func (NoopAnomalyStore) RecentBySymbol(context.Context, string, int) ([]models.StoredAnomaly, error) {
	return []models.StoredAnomaly{}, nil
}

func (NoopAnomalyStore) Close() error { return nil }

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishDetection(context.Context, models.Detection) error { return nil }

var (
	_ domrepo.AnomalyStore    = NoopAnomalyStore{}
	_ domrepo.ResultPublisher = NoopPublisher{}
)
