package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
)

type postgresListingRepository struct {
	db DBTX
}

func NewPostgresListingRepository(db DBTX) repository.ListingRepository {
	return &postgresListingRepository{db: db}
}

func (r *postgresListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	var listing entity.Listing
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, title, status, created_at
		FROM listings
		WHERE id = $1
	`, id).Scan(
		&listing.ID,
		&listing.OwnerID,
		&listing.Title,
		&listing.Status,
		&listing.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Listing", err)
		}
		return nil, errors.Internal("Failed to get listing", err)
	}

	listing.CreatedAt = listing.CreatedAt.UTC()
	return &listing, nil
}

func (r *postgresListingRepository) Save(ctx context.Context, listing *entity.Listing) error {
	if listing.ID == "" {
		return errors.InvalidArgument("Listing id is required", nil)
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now().UTC()
	}
	if listing.Status == "" {
		listing.Status = entity.ListingStatusActive
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO listings (id, owner_id, title, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
			title = EXCLUDED.title,
			status = EXCLUDED.status
	`, listing.ID, listing.OwnerID, listing.Title, listing.Status, listing.CreatedAt)
	if err != nil {
		return errors.Internal("Failed to save listing", err)
	}
	return nil
}
