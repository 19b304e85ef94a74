package analytics

import (
	"context"
	"fmt"

	"FinShock/internal/domain/models"
	domsvc "FinShock/internal/domain/service"
	"FinShock/internal/services/shock"
)

// LocalDetector runs the shock pipeline in process.
type LocalDetector struct {
	params shock.Params
}

// NewLocalDetector uses params for every field a request leaves unset.
func NewLocalDetector(params shock.Params) *LocalDetector {
	return &LocalDetector{params: params.WithDefaults()}
}

// Detect honors ctx cancellation. The pipeline itself is not interruptible, so
// an abandoned run finishes in the background and its result is dropped.
func (d *LocalDetector) Detect(ctx context.Context, req models.DetectRequest) ([]models.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := d.paramsFor(req.DetectParams)

	type result struct {
		records []shock.Record
		err     error
	}
	done := make(chan result, 1)
	go func() {
		recs, err := shock.Detect(req.Returns, req.Vols, params)
		done <- result{recs, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", domsvc.ErrInvalidSeries, r.err)
		}
		return toAnomalies(r.records), nil
	}
}

func (d *LocalDetector) paramsFor(o models.DetectParams) shock.Params {
	p := d.params
	if o.Alpha != nil {
		p.Alpha = *o.Alpha
	}
	if o.MaxOutliers != nil {
		p.MaxOutliers = *o.MaxOutliers
	}
	if o.ZScoreThreshold != nil {
		p.ZScoreThreshold = *o.ZScoreThreshold
	}
	return p
}

func toAnomalies(recs []shock.Record) []models.Anomaly {
	out := make([]models.Anomaly, len(recs))
	for i, r := range recs {
		out[i] = models.Anomaly{TSIndex: r.TSIndex, Type: string(r.Type), Severity: r.Severity}
	}
	return out
}

var _ domsvc.AnomalyDetector = (*LocalDetector)(nil)
