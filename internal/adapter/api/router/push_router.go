package router

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/adapter/api/handler"
	"posttrr/internal/adapter/api/middleware"
)

func SetupPushRouter(e *echo.Echo, pushHandler *handler.PushHandler, authMiddleware *middleware.AuthMiddleware) {
	pushGroup := e.Group("/api/push")
	pushGroup.Use(authMiddleware.Authenticate)

	pushGroup.POST("/tokens", pushHandler.RegisterToken)
	pushGroup.DELETE("/tokens/:token", pushHandler.UnregisterToken)
}
