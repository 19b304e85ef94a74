package service

import (
	"context"
	"errors"

	"FinShock/internal/domain/models"
)

// ErrInvalidSeries marks input the detector refuses: empty series, unequal
// lengths, non-finite values or out-of-range parameters. Callers report it to
// the client and never retry it.
var ErrInvalidSeries = errors.New("invalid series")

// AnomalyDetector flags shocks in an aligned returns/vols pair.
type AnomalyDetector interface {
	Detect(ctx context.Context, req models.DetectRequest) ([]models.Anomaly, error)
}
