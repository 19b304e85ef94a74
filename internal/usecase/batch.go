package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"FinShock/internal/domain/models"
)

// DetectBatch evaluates items in parallel with at most BatchWorkers in flight.
// A failing item reports its error in place and never fails the batch.
func (uc *AnomalyUseCase) DetectBatch(ctx context.Context, items []models.DetectRequest) (models.BatchResponse, error) {
	if uc.opts.BatchMaxItems > 0 && len(items) > uc.opts.BatchMaxItems {
		return models.BatchResponse{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(items), uc.opts.BatchMaxItems)
	}

	results := make([]models.BatchItemResult, len(items))
	var g errgroup.Group
	g.SetLimit(uc.opts.BatchWorkers)
	for i, item := range items {
		g.Go(func() error {
			res := models.BatchItemResult{Symbol: item.Symbol, Anomalies: []models.Anomaly{}}
			d, err := uc.Detect(ctx, item, models.SourceBatch)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Symbol = d.Symbol
				res.Anomalies = d.Anomalies
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return models.BatchResponse{Results: results}, nil
}
