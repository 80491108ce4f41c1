package router

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"posttrr/internal/adapter/api"
	"posttrr/internal/adapter/api/handler"
	"posttrr/internal/adapter/api/middleware"
	"posttrr/internal/infrastructure/ratelimit"
	"posttrr/pkg/response"
)

// NewEcho builds the HTTP server with the shared middleware stack. A nil limiter
// disables per-IP throttling.
func NewEcho(httpLimiter *ratelimit.RateLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = response.HTTPErrorHandler

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.IPRateLimit(httpLimiter))

	return e
}

// Handlers groups everything Setup mounts. A nil DevToken or Push handler skips its routes.
type Handlers struct {
	Chat      *handler.ChatHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
	Push      *handler.PushHandler
	DevToken  *handler.DevTokenHandler
}

func Setup(e *echo.Echo, handlers Handlers, authMiddleware *middleware.AuthMiddleware) {
	SetupHealthRouter(e, handlers.Health)
	SetupChatRouter(e, handlers.Chat, authMiddleware)
	SetupWebSocketRouter(e, handlers.WebSocket, authMiddleware)

	if handlers.Push != nil {
		SetupPushRouter(e, handlers.Push, authMiddleware)
	}
	if handlers.DevToken != nil {
		SetupDevRouter(e, handlers.DevToken)
	}
}
