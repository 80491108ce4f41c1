package router

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/adapter/api/handler"
	"posttrr/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the listing conversation routes
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/api/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("/open", chatHandler.OpenThread)
	chatGroup.GET("/threads", chatHandler.ListThreads)
	chatGroup.GET("/unread", chatHandler.UnreadSummary)

	chatGroup.GET("/:threadId", chatHandler.GetThread)
	chatGroup.PATCH("/:threadId/read", chatHandler.MarkThreadRead)

	chatGroup.GET("/:threadId/messages", chatHandler.ListMessages)
	chatGroup.POST("/:threadId/messages", chatHandler.PostMessage)
}
