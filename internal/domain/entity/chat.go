package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ParticipantRole identifies which side of a thread a user is on.
type ParticipantRole string

const (
	RoleBuyer  ParticipantRole = "buyer"
	RoleSeller ParticipantRole = "seller"
)

const (
	MaxMessageLength = 2000
	PreviewLength    = 120
)

type ChatThread struct {
	ID            string    `json:"id" firestore:"id" db:"id"`
	ListingID     string    `json:"listingId" firestore:"listingId" db:"listing_id"`
	BuyerID       string    `json:"buyerId" firestore:"buyerId" db:"buyer_id"`
	SellerID      string    `json:"sellerId" firestore:"sellerId" db:"seller_id"`
	LastMessage   string    `json:"lastMessage" firestore:"lastMessage" db:"last_message"`
	LastMessageAt time.Time `json:"lastMessageAt" firestore:"lastMessageAt" db:"last_message_at"`
	BuyerUnread   int64     `json:"buyerUnread" firestore:"buyerUnread" db:"buyer_unread"`
	SellerUnread  int64     `json:"sellerUnread" firestore:"sellerUnread" db:"seller_unread"`
	MessageCount  int64     `json:"messageCount" firestore:"messageCount" db:"message_count"`
	CreatedAt     time.Time `json:"createdAt" firestore:"createdAt" db:"created_at"`
}

// RoleOf returns the side userID is on, or false when userID is not a participant.
func (t *ChatThread) RoleOf(userID string) (ParticipantRole, bool) {
	switch userID {
	case "":
		return "", false
	case t.BuyerID:
		return RoleBuyer, true
	case t.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// UnreadFor returns the counter that belongs to userID.
func (t *ChatThread) UnreadFor(userID string) int64 {
	role, ok := t.RoleOf(userID)
	if !ok {
		return 0
	}
	if role == RoleBuyer {
		return t.BuyerUnread
	}
	return t.SellerUnread
}

// PreviewText shortens a message body for thread list views.
func PreviewText(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimRightFunc(string(runes[:PreviewLength]), isSpace) + "…"
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
