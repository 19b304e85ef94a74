package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinShock/pkg/http/middleware"
)

type sampleRequest struct {
	Symbol string    `json:"symbol" validate:"required"`
	Values []float64 `json:"values" validate:"min=2"`
	Limit  int       `json:"limit" default:"5" validate:"gte=1,lte=10"`
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"symbol":"AAPL","values":[1,2]}`)
	var req sampleRequest
	assert.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, 5, req.Limit)

	c, _ = newContext(http.MethodPost, `{"values":[1]}`)
	errs, ok := ReadAndValidateRequest(c, &sampleRequest{}).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
	assert.Equal(t, "symbol", errs[0].Field)
	assert.Equal(t, "ERR_MIN", errs[1].Code)
	assert.Equal(t, "values must contain at least 2 items", errs[1].Message)
}

func TestReadAndValidateRequest_BadJSON(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"symbol":`)
	errs, ok := ReadAndValidateRequest(c, &sampleRequest{}).([]ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	err := BadRequestErrorf("returns=%d vols=%d", 3, 2).WithField("vols")
	require.NoError(t, AppErrorResponse(c, err))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Status int        `json:"status"`
		Data   []AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 400, body.Status)
	assert.Equal(t, "ERR_BAD_REQUEST", body.Data[0].Code)
	assert.Equal(t, "vols", body.Data[0].Field)

	c, rec = newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, errors.New("secret detail")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithRetry(3, time.Millisecond, 2*time.Millisecond))
	var out struct{ OK bool }
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: http.MethodPost, URL: srv.URL, Body: map[string]int{"a": 1}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithRetry(3, time.Millisecond, 2*time.Millisecond))
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: http.MethodGet, URL: srv.URL}, nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })
}

func TestServer_StackAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer([]Handler{pingHandler{}}, WithMetrics("/metrics", reg, reg))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(echo.HeaderOrigin, "http://dash.local")
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `finshock_http_requests_total{class="2xx",method="GET",route="/ping"} 1`)

	// a second server on the same registry reuses the collectors
	assert.NotPanics(t, func() { NewServer(nil, WithMetrics("", reg, reg)) })
}

type budget struct{ left int }

func (b *budget) Allow(string) bool {
	b.left--
	return b.left >= 0
}

func TestRateLimitMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer([]Handler{pingHandler{}},
		WithMetrics("/metrics", reg, reg),
		WithMiddleware(middleware.RateLimit(&budget{left: 1}, "/metrics")),
	)
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/ping").Code)

	rec := get("/ping")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}
