package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-fleet-live/internal/application/tracker"
	"go-fleet-live/internal/infrastructure/logger"
)

type VehicleHandler struct {
	tracker *tracker.Tracker
	logger  logger.Logger
}

func NewVehicleHandler(trackerInstance *tracker.Tracker, logger logger.Logger) *VehicleHandler {
	return &VehicleHandler{
		tracker: trackerInstance,
		logger:  logger.WithField("handler", "vehicle"),
	}
}

// ListPositions returns the last known position of every tracked vehicle.
func (h *VehicleHandler) ListPositions(c *gin.Context) {
	positions := h.tracker.Positions()

	c.JSON(http.StatusOK, gin.H{
		"total":     len(positions),
		"positions": positions,
	})
}

func (h *VehicleHandler) GetPosition(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Vehicle ID must be a positive integer",
		})
		return
	}

	pos, ok := h.tracker.Position(id)
	if !ok {
		h.logger.Debugf("no position for vehicle %d", id)
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No position known for vehicle",
		})
		return
	}

	c.JSON(http.StatusOK, pos)
}
