package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
)

const deviceTokensCollection = "deviceTokens"

type firestoreDeviceTokenRepository struct {
	client *firestore.Client
}

func NewFirestoreDeviceTokenRepository(client *firestore.Client) repository.DeviceTokenRepository {
	return &firestoreDeviceTokenRepository{
		client: client,
	}
}

// FCM tokens are opaque and long, so documents are keyed by their digest.
func tokenDocID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *firestoreDeviceTokenRepository) Save(ctx context.Context, token *entity.DeviceToken) error {
	ref := r.client.Collection(deviceTokensCollection).Doc(tokenDocID(token.Token))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		stored := *token
		stored.CreatedAt = now
		stored.UpdatedAt = now

		doc, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing entity.DeviceToken
			if err := doc.DataTo(&existing); err == nil && !existing.CreatedAt.IsZero() {
				stored.CreatedAt = existing.CreatedAt
			}
		case status.Code(err) != codes.NotFound:
			return err
		}

		if err := tx.Set(ref, stored); err != nil {
			return err
		}
		*token = stored
		return nil
	})
	if err != nil {
		return errors.Internal("Failed to save device token", err)
	}
	return nil
}

func (r *firestoreDeviceTokenRepository) ListByUser(ctx context.Context, userID string) ([]*entity.DeviceToken, error) {
	iter := r.client.Collection(deviceTokensCollection).Where("userId", "==", userID).Documents(ctx)
	defer iter.Stop()

	var tokens []*entity.DeviceToken
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list device tokens", err)
		}

		var token entity.DeviceToken
		if err := doc.DataTo(&token); err != nil {
			continue
		}
		tokens = append(tokens, &token)
	}

	return tokens, nil
}

func (r *firestoreDeviceTokenRepository) Delete(ctx context.Context, userID, token string) error {
	ref := r.client.Collection(deviceTokensCollection).Doc(tokenDocID(token))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}

		owner, err := doc.DataAt("userId")
		if err != nil || owner != userID {
			return nil
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return errors.Internal("Failed to delete device token", err)
	}
	return nil
}
