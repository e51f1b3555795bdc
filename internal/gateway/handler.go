package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"TradeCast/internal/service/identity"
	gwmetrics "TradeCast/internal/service/metrics"
	applogger "TradeCast/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientCommand is what connected clients may send: supplementary group
// membership changes only. Signal traffic is strictly server to client.
type clientCommand struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

type commandAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler upgrades and authenticates websocket connections.
type Handler struct {
	hub      *Hub
	provider identity.Provider
	l        *applogger.Logger
}

func NewHandler(hub *Hub, provider identity.Provider, l *applogger.Logger) *Handler {
	if l == nil {
		l = applogger.Nop()
	}
	return &Handler{hub: hub, provider: provider, l: l}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.serve)
}

// serve verifies the token before any registry mutation, then upgrades and
// hands the socket to the hub.
func (h *Handler) serve(c echo.Context) error {
	token := bearerToken(c.Request())
	id, err := h.provider.Verify(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			gwmetrics.GatewayDisconnects.WithLabelValues("auth").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		h.l.Error("gateway identity verify error", applogger.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "identity service unavailable")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Upgrade already wrote the error response
	}

	if err := h.hub.Register(conn, *id); err != nil {
		conn.Close()
		return nil
	}

	go h.readLoop(conn)
	return nil
}

// readLoop consumes client commands until the socket dies, then unregisters.
func (h *Handler) readLoop(conn *websocket.Conn) {
	defer h.hub.Unregister(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.ack(conn, "bad command")
			continue
		}

		switch cmd.Action {
		case "join":
			if err := h.hub.Join(conn, cmd.Group); err != nil {
				h.ack(conn, err.Error())
			} else {
				h.ack(conn, "")
			}
		case "leave":
			if err := h.hub.Leave(conn, cmd.Group); err != nil {
				h.ack(conn, err.Error())
			} else {
				h.ack(conn, "")
			}
		default:
			h.ack(conn, "unknown action")
		}
	}
}

func (h *Handler) ack(conn *websocket.Conn, errMsg string) {
	b, err := json.Marshal(commandAck{OK: errMsg == "", Error: errMsg})
	if err != nil {
		return
	}
	h.hub.Send(conn, b)
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}
