package ws

import (
	"encoding/json"
	"sync"
	"time"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	applogger "FinShock/pkg/logger"
)

// Message is the frame pushed to feed clients.
type Message struct {
	Type      string           `json:"type"`
	Detection models.Detection `json:"data"`
	SentAt    time.Time        `json:"sent_at"`
}

// Gauge receives the connected client count.
type Gauge interface {
	SetFeedClients(n int)
}

type HubConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	MaxClients   int
}

// Hub fans detections out to websocket clients. Broadcast never blocks: a
// client whose send buffer is full is dropped.
type Hub struct {
	cfg    HubConfig
	l      *applogger.Logger
	gauge  Gauge
	mu     sync.RWMutex
	subs   map[*client]struct{}
	closed bool
}

func NewHub(cfg HubConfig, gauge Gauge, l *applogger.Logger) *Hub {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Hub{cfg: cfg, l: l, gauge: gauge, subs: make(map[*client]struct{})}
}

// Broadcast implements domrepo.Broadcaster.
func (h *Hub) Broadcast(d models.Detection) {
	b, err := json.Marshal(Message{Type: "detection", Detection: d, SentAt: time.Now().UTC()})
	if err != nil {
		h.l.Warn("feed encode failed", applogger.String("detection_id", d.ID), applogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.subs {
		if !c.wants(d.Symbol) {
			continue
		}
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.l.Warn("feed client too slow, dropping", applogger.String("client", c.id))
		h.unregister(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range subs {
		c.stop()
	}
	h.report(0)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed || (h.cfg.MaxClients > 0 && len(h.subs) >= h.cfg.MaxClients) {
		h.mu.Unlock()
		return false
	}
	h.subs[c] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.report(n)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.subs[c]
	delete(h.subs, c)
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		c.stop()
		h.report(n)
	}
}

func (h *Hub) report(n int) {
	if h.gauge != nil {
		h.gauge.SetFeedClients(n)
	}
}

var _ domrepo.Broadcaster = (*Hub)(nil)
