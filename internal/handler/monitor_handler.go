package handler

import (
	"net/http"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/hub"

	"github.com/gin-gonic/gin"
)

// MonitorHandler handles monitoring API endpoints
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
}

type monitorHandler struct {
	monitorService *hub.MonitorService
}

func NewMonitorHandler(monitorService *hub.MonitorService) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
	}
}

// GetHubStats returns current hub statistics
// @Summary Get WebSocket hub statistics
// @Description Returns connected sessions, users per shard and relay state
// @Tags Monitor
// @Produce json
// @Success 200 {object} model.MonitorResponse
// @Router /chat/api/monitor/stats [get]
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	respond(c, http.StatusOK, h.monitorService.GetStats(), "Hub statistics retrieved successfully")
}
