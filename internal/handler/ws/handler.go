package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	xhttp "FinShock/pkg/http"
	applogger "FinShock/pkg/logger"
	"FinShock/pkg/util"
)

// FeedHandler upgrades GET /ws/anomalies to a live detection feed.
type FeedHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewFeedHandler(hub *Hub) *FeedHandler {
	return &FeedHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// origins are enforced by the CORS middleware
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *FeedHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/anomalies", h.Serve)
}

func (h *FeedHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		return nil
	}

	cl := newClient(uuid.NewString(), util.NormalizeSymbol(c.QueryParam("symbol")), conn, h.hub.cfg.SendBuffer)
	if !h.hub.register(cl) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many feed clients"))
		_ = conn.Close()
		return nil
	}
	h.hub.l.Debug("feed client connected",
		applogger.String("client", cl.id),
		applogger.String("symbol", cl.symbol),
	)

	go cl.writePump(h.hub)
	go cl.readPump(h.hub)
	return nil
}

var _ xhttp.Handler = (*FeedHandler)(nil)
