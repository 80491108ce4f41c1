package entity

import "time"

const (
	ListingStatusActive = "active"
	ListingStatusSold   = "sold"
)

// Listing is the read-only view of a classified that chat needs.
type Listing struct {
	ID        string    `json:"id" firestore:"id" db:"id" yaml:"id"`
	OwnerID   string    `json:"ownerId" firestore:"ownerId" db:"owner_id" yaml:"ownerId"`
	Title     string    `json:"title" firestore:"title" db:"title" yaml:"title"`
	Status    string    `json:"status" firestore:"status" db:"status" yaml:"status"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" db:"created_at" yaml:"createdAt"`
}
