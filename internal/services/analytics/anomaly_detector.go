package analytics

import (
	"context"
	"fmt"

	"FinShock/internal/domain/models"
	domsvc "FinShock/internal/domain/service"
)

// RemoteDetector delegates detection to a peer service speaking the
// /anomaly/detect wire format.
type RemoteDetector struct {
	base *HTTPServiceBase
}

func NewRemoteDetector(base *HTTPServiceBase) *RemoteDetector {
	return &RemoteDetector{base: base}
}

func (d *RemoteDetector) Detect(ctx context.Context, req models.DetectRequest) ([]models.Anomaly, error) {
	var resp models.DetectResponse
	if err := d.base.PostJSON(ctx, "/anomaly/detect", req, &resp); err != nil {
		if isRejected(err) {
			return nil, fmt.Errorf("%w: %w", domsvc.ErrInvalidSeries, err)
		}
		return nil, err
	}
	if resp.Anomalies == nil {
		resp.Anomalies = []models.Anomaly{}
	}
	return resp.Anomalies, nil
}

var _ domsvc.AnomalyDetector = (*RemoteDetector)(nil)
