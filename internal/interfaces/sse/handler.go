package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

type ServerSentEventHandler struct {
	hub       *hub.Hub
	registry  *relay.Registry
	relay     *relay.Relay
	keepAlive time.Duration
	logger    logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	registry *relay.Registry,
	relayInstance *relay.Relay,
	keepAlive time.Duration,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:       hubInstance,
		registry:  registry,
		relay:     relayInstance,
		keepAlive: keepAlive,
		logger:    logger.WithField("handler", "sse"),
	}
}

// Connect streams one hub channel to the caller until it disconnects.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	channel := c.Param("channel")

	if !h.hub.IsRunning() || !h.registry.IsRunning() {
		h.logger.Error("hub or client registry is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	client := relay.NewSSEClient(c.Request.Context(), channel, c.Writer, h.keepAlive, h.logger)
	h.logger.Infof("SSE client %s connecting to channel %s", client.ID(), channel)

	if err := h.relay.Serve(c.Request.Context(), client); err != nil {
		h.logger.WithField("client_id", client.ID()).Errorf("SSE relay ended: %v", err)
		if !c.Writer.Written() {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Failed to attach to channel",
			})
		}
		return
	}

	h.logger.Infof("SSE client %s disconnected", client.ID())
}

// GetConnections lists the SSE clients currently attached.
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	clients := h.registry.ListByType(relay.TypeSSE)
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
