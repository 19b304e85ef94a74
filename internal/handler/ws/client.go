package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applogger "FinShock/pkg/logger"
)

const maxMessageSize = 4096

type client struct {
	id     string
	symbol string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(id, symbol string, conn *websocket.Conn, buffer int) *client {
	return &client{
		id:     id,
		symbol: symbol,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// wants reports whether the client subscribed to symbol. An empty filter
// matches everything.
func (c *client) wants(symbol string) bool {
	return c.symbol == "" || c.symbol == symbol
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// readPump only services control frames; the feed is one-way. It returns when
// the peer goes away or stops answering pings.
func (c *client) readPump(h *Hub) {
	defer h.unregister(c)

	pongWait := 2 * h.cfg.PingInterval
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debug("feed client read error", applogger.String("client", c.id), applogger.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		h.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
