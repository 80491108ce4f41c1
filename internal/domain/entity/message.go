package entity

import "time"

type ChatMessage struct {
	ID        string    `json:"id" firestore:"id" db:"id"`
	ThreadID  string    `json:"threadId" firestore:"threadId" db:"thread_id"`
	SenderID  string    `json:"senderId" firestore:"senderId" db:"sender_id"`
	Text      string    `json:"text" firestore:"text" db:"text"`
	Seq       int64     `json:"seq" firestore:"seq" db:"seq"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" db:"created_at"`
}

// Before reports whether m sorts ahead of other in thread order.
func (m *ChatMessage) Before(other *ChatMessage) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	if m.Seq != other.Seq {
		return m.Seq < other.Seq
	}
	return m.ID < other.ID
}
