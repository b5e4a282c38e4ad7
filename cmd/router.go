package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-fleet-live/internal/application/tracker"
	"go-fleet-live/internal/infrastructure/config"
	"go-fleet-live/internal/infrastructure/hub"
	"go-fleet-live/internal/infrastructure/logger"
	"go-fleet-live/internal/infrastructure/relay"
	"go-fleet-live/internal/interfaces/rest/v1/handler"
	"go-fleet-live/internal/interfaces/sse"
	"go-fleet-live/internal/interfaces/websocket"
)

type routerDeps struct {
	hub      *hub.Hub
	registry *relay.Registry
	relay    *relay.Relay
	tracker  *tracker.Tracker
}

func InitRouter(cfg *config.Config, deps routerDeps, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(requestLogger(log.WithField("component", "http")))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	hubHandler := handler.NewHubHandler(deps.hub, deps.registry, deps.tracker, log)
	rootGroup.GET("/hub/status", hubHandler.Status)

	vehicleHandler := handler.NewVehicleHandler(deps.tracker, log)
	apiGroup := rootGroup.Group("/api/v1")
	{
		apiGroup.GET("/clients", hubHandler.Clients)
		apiGroup.GET("/vehicles/positions", vehicleHandler.ListPositions)
		apiGroup.GET("/vehicles/:id/position", vehicleHandler.GetPosition)
	}

	sse.InitSSERouter(log, deps.hub, deps.registry, deps.relay, cfg.Relay.KeepAlive, rootGroup)
	websocket.InitWebSocketRouter(log, deps.hub, deps.registry, deps.relay, rootGroup)

	return router
}

// requestLogger logs one line per request once it completes; for streaming
// routes that is when the client disconnects.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logger.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Info("request completed")
	}
}
