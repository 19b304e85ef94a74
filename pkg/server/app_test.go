package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinShock/internal/handler/ws"
	xhttp "FinShock/pkg/http"
)

type okHandler struct{}

func (okHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestApp_RunContextShutsDownInOrder(t *testing.T) {
	port := freePort(t)
	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer([]xhttp.Handler{okHandler{}},
		xhttp.WithHost("127.0.0.1"),
		xhttp.WithPort(port),
		xhttp.WithMetrics("", reg, reg),
	)
	hub := ws.NewHub(ws.HubConfig{}, nil, nil)
	app := New(nil, srv, nil, nil, hub, time.Second)

	var order []string
	app.OnShutdown("first", func() error { order = append(order, "first"); return nil })
	app.OnShutdown("second", func() error { order = append(order, "second"); return errors.New("boom") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.EqualError(t, err, "boom")
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Zero(t, hub.Len())
}

