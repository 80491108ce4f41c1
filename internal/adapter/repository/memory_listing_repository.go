package repository

import (
	"context"
	"sync"
	"time"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
)

type memoryListingRepository struct {
	mu       sync.RWMutex
	listings map[string]*entity.Listing
}

func NewMemoryListingRepository() repository.ListingRepository {
	return &memoryListingRepository{
		listings: make(map[string]*entity.Listing),
	}
}

func (r *memoryListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[id]
	if !ok {
		return nil, errors.NotFound("Listing", nil)
	}
	c := *listing
	return &c, nil
}

func (r *memoryListingRepository) Save(ctx context.Context, listing *entity.Listing) error {
	if listing.ID == "" {
		return errors.InvalidArgument("Listing id is required", nil)
	}

	c := *listing
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.listings[c.ID] = &c
	r.mu.Unlock()

	return nil
}
