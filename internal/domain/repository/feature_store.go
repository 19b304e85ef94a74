package repository

import (
	"context"
	"time"

	"FinShock/internal/domain/models"
)

// FeatureStore provides read-only access to candles for analytics.
type FeatureStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	// GetLatestNCandles returns at most n candles in ascending time order.
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
