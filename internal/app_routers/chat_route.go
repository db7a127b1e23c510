package approuters

import (
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/configuration"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/middleware"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/chat/api")
	chatRoute.Use(middleware.RequireAuth(container.Tokens, container.Logger))
	{
		chatRoute.GET("/conversations", container.ChatHandler.GetConversations)
		chatRoute.GET("/unread-count", container.ChatHandler.GetUnreadCount)
		chatRoute.GET("/messages/:otherUserId", container.ChatHandler.GetMessages)
		chatRoute.POST("/messages/:otherUserId", container.ChatHandler.SendMessage)
		chatRoute.PUT("/messages/:otherUserId/read", container.ChatHandler.MarkAsRead)
	}
}
