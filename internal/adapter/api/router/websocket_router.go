package router

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/adapter/api/handler"
	"posttrr/internal/adapter/api/middleware"
)

// SetupWebSocketRouter sets up the realtime endpoint. Browsers cannot set headers on
// the upgrade request, so the token may also arrive as ?token=.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/ws", wsHandler.HandleWebSocket, authMiddleware.AuthenticateWebSocket)
}
