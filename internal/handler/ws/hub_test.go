package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinShock/internal/domain/models"
)

type recordingGauge struct {
	mu sync.Mutex
	n  int
}

func (g *recordingGauge) SetFeedClients(n int) {
	g.mu.Lock()
	g.n = n
	g.mu.Unlock()
}

func (g *recordingGauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func newFeed(t *testing.T, cfg HubConfig) (*Hub, string) {
	t.Helper()
	hub := NewHub(cfg, nil, nil)
	e := echo.New()
	NewFeedHandler(hub).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/anomalies"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func detection(symbol string) models.Detection {
	return models.Detection{
		ID:        "id-" + symbol,
		Symbol:    symbol,
		Source:    models.SourceHTTP,
		Points:    20,
		Anomalies: []models.Anomaly{{TSIndex: 10, Type: models.AnomalyPriceShock, Severity: 1}},
	}
}

func TestFeed_FiltersBySymbol(t *testing.T) {
	hub, url := newFeed(t, HubConfig{})
	all := dial(t, url)
	aapl := dial(t, url+"?symbol=aapl")
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(detection("MSFT"))
	hub.Broadcast(detection("AAPL"))

	read := func(conn *websocket.Conn) Message {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		var m Message
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	}

	assert.Equal(t, "MSFT", read(all).Detection.Symbol)
	assert.Equal(t, "AAPL", read(all).Detection.Symbol)

	m := read(aapl)
	assert.Equal(t, "detection", m.Type)
	assert.Equal(t, "id-AAPL", m.Detection.ID)
	require.Len(t, m.Detection.Anomalies, 1)
	assert.Equal(t, 10, m.Detection.Anomalies[0].TSIndex)
}

func TestFeed_RejectsOverCapacity(t *testing.T) {
	hub, url := newFeed(t, HubConfig{MaxClients: 1})
	dial(t, url)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	extra := dial(t, url)
	_ = extra.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := extra.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
	assert.Equal(t, 1, hub.Len())
}

func TestFeed_CloseDisconnectsClients(t *testing.T) {
	hub, url := newFeed(t, HubConfig{})
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, hub.Len())
}

func TestHub_DropsSlowClient(t *testing.T) {
	gauge := &recordingGauge{}
	hub := NewHub(HubConfig{SendBuffer: 1}, gauge, nil)

	// no pumps run, so nothing drains the buffer
	slow := newClient("slow", "", nil, 1)
	require.True(t, hub.register(slow))
	assert.Equal(t, 1, gauge.get())

	hub.Broadcast(detection("AAPL"))
	assert.Equal(t, 1, hub.Len())
	hub.Broadcast(detection("AAPL"))
	assert.Zero(t, hub.Len())
	assert.Zero(t, gauge.get())

	select {
	case <-slow.done:
	default:
		t.Fatal("slow client was not stopped")
	}
}

func TestHub_RejectsAfterClose(t *testing.T) {
	hub := NewHub(HubConfig{}, nil, nil)
	hub.Close()
	assert.False(t, hub.register(newClient("late", "", nil, 1)))
}
