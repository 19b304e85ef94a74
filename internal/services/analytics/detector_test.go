package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinShock/internal/domain/models"
	domsvc "FinShock/internal/domain/service"
	"FinShock/internal/services/shock"
)

func spikeRequest() models.DetectRequest {
	returns := make([]float64, 20)
	vols := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.001
		vols[i] = 0.01
	}
	returns[10] = 0.05
	return models.DetectRequest{Symbol: "AAPL", Returns: returns, Vols: vols}
}

func TestLocalDetector_FlagsPriceShock(t *testing.T) {
	d := NewLocalDetector(shock.DefaultParams())
	got, err := d.Detect(context.Background(), spikeRequest())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].TSIndex)
	assert.Equal(t, models.AnomalyPriceShock, got[0].Type)
	assert.Greater(t, got[0].Severity, 0.0)
	assert.LessOrEqual(t, got[0].Severity, 1.0)
}

func TestLocalDetector_ContractViolation(t *testing.T) {
	d := NewLocalDetector(shock.DefaultParams())
	_, err := d.Detect(context.Background(), models.DetectRequest{Symbol: "X", Returns: []float64{1, 2, 3}, Vols: []float64{1, 2}})
	require.ErrorIs(t, err, domsvc.ErrInvalidSeries)
	assert.ErrorIs(t, err, shock.ErrLengthMismatch)
	assert.Contains(t, err.Error(), "returns=3 vols=2")

	bad := 1.5
	req := spikeRequest()
	req.Alpha = &bad
	_, err = d.Detect(context.Background(), req)
	assert.ErrorIs(t, err, domsvc.ErrInvalidSeries)
}

func TestLocalDetector_ShortSeriesIsEmpty(t *testing.T) {
	d := NewLocalDetector(shock.Params{})
	got, err := d.Detect(context.Background(), models.DetectRequest{Returns: []float64{1, 2, 3}, Vols: []float64{1, 2, 3}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLocalDetector_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalDetector(shock.Params{}).Detect(ctx, spikeRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalDetector_ParamOverride(t *testing.T) {
	d := NewLocalDetector(shock.Params{Alpha: 0.01, MaxOutliers: 3})
	thr := 9.0
	p := d.paramsFor(models.DetectParams{ZScoreThreshold: &thr})
	assert.Equal(t, 0.01, p.Alpha)
	assert.Equal(t, 3, p.MaxOutliers)
	assert.Equal(t, 9.0, p.ZScoreThreshold)
}

func TestRemoteDetector(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/anomaly/detect", r.URL.Path)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req models.DetectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Returns) != len(req.Vols) {
			http.Error(w, `{"detail":"length mismatch"}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.DetectResponse{Anomalies: []models.Anomaly{{TSIndex: 10, Type: "price_shock", Severity: 1}}})
	}))
	defer srv.Close()

	d := NewRemoteDetector(NewHTTPServiceBase(srv.URL+"/", time.Second, 2))
	got, err := d.Detect(context.Background(), spikeRequest())
	require.NoError(t, err)
	assert.Equal(t, []models.Anomaly{{TSIndex: 10, Type: "price_shock", Severity: 1}}, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = d.Detect(context.Background(), models.DetectRequest{Returns: []float64{1}, Vols: []float64{1, 2}})
	assert.ErrorIs(t, err, domsvc.ErrInvalidSeries)
}

func TestHTTPServiceBase_NotConfigured(t *testing.T) {
	err := NewHTTPServiceBase("", 0, 0).PostJSON(context.Background(), "/x", nil, nil)
	assert.EqualError(t, err, "analytics http client not initialized")
}
