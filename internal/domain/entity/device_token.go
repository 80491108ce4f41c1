package entity

import "time"

type DeviceToken struct {
	Token     string    `json:"token" firestore:"token" db:"token"`
	UserID    string    `json:"userId" firestore:"userId" db:"user_id"`
	Platform  string    `json:"platform" firestore:"platform" db:"platform"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt" db:"updated_at"`
}
