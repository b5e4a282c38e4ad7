package sse

import (
	"time"

	"github.com/gin-gonic/gin"

	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	registry *relay.Registry,
	relayInstance *relay.Relay,
	keepAlive time.Duration,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, registry, relayInstance, keepAlive, logger)

	// SSE relay endpoint, one stream per channel
	rg.GET("/sse/:channel", sseHandler.Connect)

	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", sseHandler.GetConnections)
}
