package router

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/adapter/api/handler"
)

// SetupDevRouter exposes token minting. Only call it outside production.
func SetupDevRouter(e *echo.Echo, devHandler *handler.DevTokenHandler) {
	devGroup := e.Group("/_dev")
	devGroup.POST("/token", devHandler.IssueToken)
}
