package repository

import (
	"context"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
)

type postgresDeviceTokenRepository struct {
	db DBTX
}

func NewPostgresDeviceTokenRepository(db DBTX) repository.DeviceTokenRepository {
	return &postgresDeviceTokenRepository{db: db}
}

func (r *postgresDeviceTokenRepository) Save(ctx context.Context, token *entity.DeviceToken) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO device_tokens (token, user_id, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, token.Token, token.UserID, token.Platform).Scan(&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return errors.Internal("Failed to save device token", err)
	}
	return nil
}

func (r *postgresDeviceTokenRepository) ListByUser(ctx context.Context, userID string) ([]*entity.DeviceToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT token, user_id, platform, created_at, updated_at
		FROM device_tokens
		WHERE user_id = $1
		ORDER BY token
	`, userID)
	if err != nil {
		return nil, errors.Internal("Failed to list device tokens", err)
	}
	defer rows.Close()

	var tokens []*entity.DeviceToken
	for rows.Next() {
		var token entity.DeviceToken
		if err := rows.Scan(&token.Token, &token.UserID, &token.Platform, &token.CreatedAt, &token.UpdatedAt); err != nil {
			return nil, errors.Internal("Failed to read device token", err)
		}
		tokens = append(tokens, &token)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to list device tokens", err)
	}

	return tokens, nil
}

func (r *postgresDeviceTokenRepository) Delete(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM device_tokens WHERE token = $1 AND user_id = $2`, token, userID)
	if err != nil {
		return errors.Internal("Failed to delete device token", err)
	}
	return nil
}
