package handler

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/usecase"
	"posttrr/pkg/response"
)

type PushHandler struct {
	notificationUseCase *usecase.NotificationUseCase
}

func NewPushHandler(notificationUseCase *usecase.NotificationUseCase) *PushHandler {
	return &PushHandler{
		notificationUseCase: notificationUseCase,
	}
}

type registerTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"omitempty,oneof=android ios web"`
}

func (h *PushHandler) RegisterToken(c echo.Context) error {
	var req registerTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	device, err := h.notificationUseCase.RegisterDevice(c.Request().Context(), userID, req.Token, req.Platform)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, device)
}

func (h *PushHandler) UnregisterToken(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.notificationUseCase.UnregisterDevice(c.Request().Context(), userID, c.Param("token")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Token removed"})
}
