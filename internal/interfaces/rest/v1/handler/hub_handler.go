package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"go-fleet-live/internal/application/tracker"
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

type HubHandler struct {
	hub      *hub.Hub
	registry *relay.Registry
	tracker  *tracker.Tracker
	logger   logger.Logger
}

type ClientInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Closed  bool   `json:"closed"`
}

func NewHubHandler(
	hubInstance *hub.Hub,
	registry *relay.Registry,
	trackerInstance *tracker.Tracker,
	logger logger.Logger,
) *HubHandler {
	return &HubHandler{
		hub:      hubInstance,
		registry: registry,
		tracker:  trackerInstance,
		logger:   logger.WithField("handler", "hub"),
	}
}

// Status reports the shared upstream stream, downstream clients and the
// tracker. It answers 503 once the hub or the registry has stopped.
func (h *HubHandler) Status(c *gin.Context) {
	stats := h.hub.Stats()
	healthy := stats.Running && h.registry.IsRunning()

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	h.logger.Debugf(
		"hub status check - running: %v, subscribers: %d, clients: %d",
		stats.Running,
		stats.Subscribers,
		h.registry.Count(),
	)

	c.JSON(code, gin.H{
		"status":           status,
		"hub":              stats,
		"registry_running": h.registry.IsRunning(),
		"clients":          h.registry.Count(),
		"tracker":          h.tracker.Stats(),
	})
}

// Clients lists every downstream client, whatever its transport.
func (h *HubHandler) Clients(c *gin.Context) {
	clients := lo.Map(h.registry.List(), func(client relay.Client, _ int) ClientInfo {
		return ClientInfo{
			ID:      client.ID(),
			Type:    client.Type(),
			Channel: client.Channel(),
			Closed:  client.IsClosed(),
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"total":   len(clients),
		"clients": clients,
	})
}
