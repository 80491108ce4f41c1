package repository

import (
	"context"

	"posttrr/internal/domain/entity"
)

type ChatRepository interface {
	// FindOrCreateThread returns the thread for (ListingID, BuyerID), creating it from
	// thread when none exists. The bool is true when this call created it.
	FindOrCreateThread(ctx context.Context, thread *entity.ChatThread) (*entity.ChatThread, bool, error)
	GetThreadByID(ctx context.Context, id string) (*entity.ChatThread, error)
	// ListThreadsByParticipant orders by lastMessageAt desc, then id. An empty role matches either side.
	ListThreadsByParticipant(ctx context.Context, userID string, role entity.ParticipantRole, limit, offset int) ([]*entity.ChatThread, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)

	// AppendMessage stores message and updates the thread's preview, timestamp, sequence
	// and the recipient's unread counter as one atomic unit. It fills in ID, Seq and
	// CreatedAt on message and returns the updated thread.
	AppendMessage(ctx context.Context, message *entity.ChatMessage) (*entity.ChatThread, error)
	// ListMessages returns newest-first pages.
	ListMessages(ctx context.Context, threadID string, limit, offset int) ([]*entity.ChatMessage, int64, error)
	// ResetUnread zeroes only the counter of the given side.
	ResetUnread(ctx context.Context, threadID string, role entity.ParticipantRole) (*entity.ChatThread, error)
}
