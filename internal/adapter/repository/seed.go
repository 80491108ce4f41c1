package repository

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/logger"
)

// ListingSeed is the YAML fixture format:
//
//	listings:
//	  - id: bike-1
//	    ownerId: seller-1
//	    title: Road bike
type ListingSeed struct {
	Listings []*entity.Listing `yaml:"listings"`
}

func LoadListingSeed(path string) (*ListingSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseListingSeed(data)
}

func ParseListingSeed(data []byte) (*ListingSeed, error) {
	var seed ListingSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	for i, listing := range seed.Listings {
		if listing == nil || listing.ID == "" || listing.OwnerID == "" {
			return nil, fmt.Errorf("seed listing %d: id and ownerId are required", i)
		}
		if listing.Status == "" {
			listing.Status = entity.ListingStatusActive
		}
	}

	return &seed, nil
}

// Apply writes every seeded listing through repo.
func (s *ListingSeed) Apply(ctx context.Context, repo repository.ListingRepository) error {
	for _, listing := range s.Listings {
		if err := repo.Save(ctx, listing); err != nil {
			return fmt.Errorf("seed listing %s: %w", listing.ID, err)
		}
	}
	logger.Info("Seeded %d listings", len(s.Listings))
	return nil
}
