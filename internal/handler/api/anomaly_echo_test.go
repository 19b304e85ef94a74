package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	"FinShock/internal/repository"
	"FinShock/internal/services/analytics"
	"FinShock/internal/services/shock"
	"FinShock/internal/usecase"
	xlogger "FinShock/pkg/logger"
)

type staticFeatures struct{ candles []models.Candle }

func (s staticFeatures) GetCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	return s.candles, nil
}

func (s staticFeatures) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return s.candles, nil
}

func newEcho(features domrepo.FeatureStore) *echo.Echo {
	uc := usecase.NewAnomalyUseCase(usecase.AnomalyDeps{
		Detector: analytics.NewLocalDetector(shock.DefaultParams()),
		Store:    repository.NoopAnomalyStore{},
		Features: features,
	}, usecase.AnomalyOptions{Timeout: time.Second, BatchWorkers: 2, BatchMaxItems: 10})

	e := echo.New()
	NewAnomalyEchoHandler(xlogger.Nop(), uc).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func series(n int, v float64) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "0.001"
	}
	if v != 0 {
		parts[n/2] = "0.05"
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestHealth(t *testing.T) {
	rec := do(newEcho(nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDetect_WireFormat(t *testing.T) {
	body := `{"symbol":"AAPL","returns":` + series(20, 1) + `,"vols":` + strings.ReplaceAll(series(20, 0), "0.001", "0.01") + `}`
	rec := do(newEcho(nil), http.MethodPost, "/anomaly/detect", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Detection-ID"))

	var resp models.DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Anomalies, 1)
	assert.Equal(t, 10, resp.Anomalies[0].TSIndex)
	assert.Equal(t, "price_shock", resp.Anomalies[0].Type)
}

func TestDetect_ShortSeriesIsEmptyList(t *testing.T) {
	rec := do(newEcho(nil), http.MethodPost, "/anomaly/detect", `{"symbol":"AAPL","returns":[0.1,0.2,0.3],"vols":[1,2,3]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"anomalies":[]}`, rec.Body.String())
}

func TestDetect_ContractViolations(t *testing.T) {
	e := newEcho(nil)
	cases := map[string]struct {
		body string
		want string
	}{
		"length mismatch": {`{"symbol":"AAPL","returns":[1,2,3],"vols":[1,2]}`, "returns=3 vols=2"},
		"empty returns":   {`{"symbol":"AAPL","returns":[],"vols":[1]}`, "non-empty"},
		"missing vols":    {`{"symbol":"AAPL","returns":[1]}`, "non-empty"},
		"missing symbol":  {`{"returns":[1],"vols":[1]}`, "ERR_REQUIRED"},
		"bad alpha":       {`{"symbol":"AAPL","returns":[1],"vols":[1],"alpha":2}`, "ERR_LT"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/anomaly/detect", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestDetectBatch(t *testing.T) {
	body := `{"items":[
		{"symbol":"ok","returns":[1,2,3],"vols":[1,2,3]},
		{"symbol":"bad","returns":[1,2,3],"vols":[1]}
	]}`
	rec := do(newEcho(nil), http.MethodPost, "/anomaly/detect/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "OK", resp.Results[0].Symbol)
	assert.Empty(t, resp.Results[0].Error)
	assert.Contains(t, resp.Results[1].Error, "returns=3 vols=1")

	rec = do(newEcho(nil), http.MethodPost, "/anomaly/detect/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFromCandles(t *testing.T) {
	rec := do(newEcho(nil), http.MethodGet, "/api/anomaly?symbol=AAPL&n=100", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(newEcho(nil), http.MethodGet, "/api/anomaly?n=100", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 40)
	price := 100.0
	for i := range candles {
		if i == 25 {
			price *= 1.2
		} else {
			price *= 1.0005
		}
		candles[i] = models.Candle{Bucket: base.Add(time.Duration(i) * time.Minute), Symbol: "AAPL", Close: price}
	}
	rec = do(newEcho(staticFeatures{candles}), http.MethodGet, "/api/anomaly?symbol=AAPL&n=40&tf=1m", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Status int `json:"status"`
		Data   struct {
			Rows  []models.MarketAnomaly `json:"rows"`
			Total int64                  `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(len(body.Data.Rows)), body.Data.Total)
	require.NotEmpty(t, body.Data.Rows)

	var found bool
	for _, a := range body.Data.Rows {
		assert.Equal(t, "AAPL", a.Symbol)
		assert.True(t, candles[a.TSIndex+1].Bucket.Equal(a.Timestamp))
		if a.TSIndex == 24 {
			found = true
		}
	}
	assert.True(t, found, "the 20 percent jump is flagged")

	rec = do(newEcho(staticFeatures{candles}), http.MethodGet, "/api/anomaly?symbol=AAPL&from=junk", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid time range")
}

func TestHistory(t *testing.T) {
	rec := do(newEcho(nil), http.MethodGet, "/api/anomaly/history?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}
