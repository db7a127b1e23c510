package approuters

import (
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/configuration"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/middleware"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorGroup := router.Group("/chat/api/monitor")
	monitorGroup.Use(middleware.RequireAuth(container.Tokens, container.Logger))
	{
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
