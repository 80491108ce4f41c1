package repository

import (
	"context"

	"posttrr/internal/domain/entity"
)

type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
	// Save upserts a listing. Only fixtures and tests write listings.
	Save(ctx context.Context, listing *entity.Listing) error
}
