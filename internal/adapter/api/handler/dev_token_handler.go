package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"posttrr/internal/infrastructure/jwtauth"
	"posttrr/pkg/errors"
	"posttrr/pkg/response"
)

// DevTokenHandler issues session tokens for any user id. Development only.
type DevTokenHandler struct {
	signer *jwtauth.Signer
}

func NewDevTokenHandler(signer *jwtauth.Signer) *DevTokenHandler {
	return &DevTokenHandler{
		signer: signer,
	}
}

type devTokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *DevTokenHandler) IssueToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	token, expiresAt, err := h.signer.Issue(req.UserID)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to issue token", err))
	}

	return response.Success(c, map[string]string{
		"user_id":    req.UserID,
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
