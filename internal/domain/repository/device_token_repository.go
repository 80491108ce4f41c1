package repository

import (
	"context"

	"posttrr/internal/domain/entity"
)

type DeviceTokenRepository interface {
	Save(ctx context.Context, token *entity.DeviceToken) error
	ListByUser(ctx context.Context, userID string) ([]*entity.DeviceToken, error)
	// Delete removes token if it belongs to userID. Missing tokens are not an error.
	Delete(ctx context.Context, userID, token string) error
}
