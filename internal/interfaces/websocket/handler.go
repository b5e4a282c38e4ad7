package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

// WebSocketHandler relays hub channels over WebSocket connections.
type WebSocketHandler struct {
	hub      *hub.Hub
	registry *relay.Registry
	relay    *relay.Relay
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(
	hubInstance *hub.Hub,
	registry *relay.Registry,
	relayInstance *relay.Relay,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hubInstance,
		registry: registry,
		relay:    relayInstance,
		logger:   logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway is read-only; any dashboard origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request and relays one hub channel until either side
// closes.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	channel := c.Param("channel")

	if !h.hub.IsRunning() || !h.registry.IsRunning() {
		h.logger.Error("hub or client registry is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("failed to upgrade connection: %v", err)
		return
	}

	client := relay.NewWebSocketClient(c.Request.Context(), channel, conn, h.logger)
	h.logger.Infof("WebSocket client %s connecting to channel %s", client.ID(), channel)

	if err := h.relay.Serve(c.Request.Context(), client); err != nil {
		h.logger.WithField("client_id", client.ID()).Errorf("WebSocket relay ended: %v", err)
		return
	}
	h.logger.Infof("WebSocket client %s disconnected", client.ID())
}

// GetConnections lists the WebSocket clients currently attached.
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	clients := h.registry.ListByType(relay.TypeWebSocket)
	info := make([]gin.H, len(clients))

	for i, client := range clients {
		info[i] = gin.H{
			"id":      client.ID(),
			"channel": client.Channel(),
			"closed":  client.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(clients),
		"connections":       info,
		"hub_running":       h.hub.IsRunning(),
	})
}
