package websocket

import (
	"github.com/gin-gonic/gin"

	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	registry *relay.Registry,
	relayInstance *relay.Relay,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(hubInstance, registry, relayInstance, logger)

	rg.GET("/ws/:channel", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
