package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
)

type memoryChatRepository struct {
	mu         sync.RWMutex
	threads    map[string]*entity.ChatThread
	threadKeys map[string]string
	messages   map[string][]*entity.ChatMessage
}

// NewMemoryChatRepository keeps chat state in process. Every mutation runs under one
// lock, which makes AppendMessage atomic with respect to concurrent senders.
func NewMemoryChatRepository() repository.ChatRepository {
	return &memoryChatRepository{
		threads:    make(map[string]*entity.ChatThread),
		threadKeys: make(map[string]string),
		messages:   make(map[string][]*entity.ChatMessage),
	}
}

func threadKey(listingID, buyerID string) string {
	return listingID + ":" + buyerID
}

func (r *memoryChatRepository) FindOrCreateThread(ctx context.Context, thread *entity.ChatThread) (*entity.ChatThread, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := threadKey(thread.ListingID, thread.BuyerID)
	if id, ok := r.threadKeys[key]; ok {
		return copyThread(r.threads[id]), false, nil
	}

	stored := copyThread(thread)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.LastMessageAt.IsZero() {
		stored.LastMessageAt = stored.CreatedAt
	}

	r.threads[stored.ID] = stored
	r.threadKeys[key] = stored.ID

	return copyThread(stored), true, nil
}

func (r *memoryChatRepository) GetThreadByID(ctx context.Context, id string) (*entity.ChatThread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	thread, ok := r.threads[id]
	if !ok {
		return nil, errors.NotFound("Thread", nil)
	}
	return copyThread(thread), nil
}

func (r *memoryChatRepository) ListThreadsByParticipant(ctx context.Context, userID string, role entity.ParticipantRole, limit, offset int) ([]*entity.ChatThread, int64, error) {
	r.mu.RLock()
	var matched []*entity.ChatThread
	for _, thread := range r.threads {
		if matchesRole(thread, userID, role) {
			matched = append(matched, copyThread(thread))
		}
	}
	r.mu.RUnlock()

	sortThreads(matched)

	return paginate(matched, limit, offset), int64(len(matched)), nil
}

func (r *memoryChatRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, thread := range r.threads {
		total += thread.UnreadFor(userID)
	}
	return total, nil
}

func (r *memoryChatRepository) AppendMessage(ctx context.Context, message *entity.ChatMessage) (*entity.ChatThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	thread, ok := r.threads[message.ThreadID]
	if !ok {
		return nil, errors.NotFound("Thread", nil)
	}
	role, ok := thread.RoleOf(message.SenderID)
	if !ok {
		return nil, errors.Forbidden("You are not a participant of this thread", nil)
	}

	prepareMessage(message, thread)

	stored := *message
	r.messages[thread.ID] = append(r.messages[thread.ID], &stored)
	applyAppend(thread, message, role)

	return copyThread(thread), nil
}

func (r *memoryChatRepository) ListMessages(ctx context.Context, threadID string, limit, offset int) ([]*entity.ChatMessage, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.threads[threadID]; !ok {
		return nil, 0, errors.NotFound("Thread", nil)
	}

	stored := r.messages[threadID]
	newestFirst := make([]*entity.ChatMessage, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		msg := *stored[i]
		newestFirst = append(newestFirst, &msg)
	}

	return paginate(newestFirst, limit, offset), int64(len(stored)), nil
}

func (r *memoryChatRepository) ResetUnread(ctx context.Context, threadID string, role entity.ParticipantRole) (*entity.ChatThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	thread, ok := r.threads[threadID]
	if !ok {
		return nil, errors.NotFound("Thread", nil)
	}

	switch role {
	case entity.RoleBuyer:
		thread.BuyerUnread = 0
	case entity.RoleSeller:
		thread.SellerUnread = 0
	default:
		return nil, errors.InvalidArgument("Unknown participant role", nil)
	}

	return copyThread(thread), nil
}

// prepareMessage assigns the identity, sequence and timestamp of the next message in thread.
// CreatedAt never goes backwards so (createdAt, seq) stays a total order.
func prepareMessage(message *entity.ChatMessage, thread *entity.ChatThread) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if message.CreatedAt.Before(thread.LastMessageAt) {
		message.CreatedAt = thread.LastMessageAt
	}
	message.Seq = thread.MessageCount + 1
}

func applyAppend(thread *entity.ChatThread, message *entity.ChatMessage, senderRole entity.ParticipantRole) {
	thread.LastMessage = entity.PreviewText(message.Text)
	thread.LastMessageAt = message.CreatedAt
	thread.MessageCount = message.Seq
	if senderRole == entity.RoleBuyer {
		thread.SellerUnread++
	} else {
		thread.BuyerUnread++
	}
}

func matchesRole(thread *entity.ChatThread, userID string, role entity.ParticipantRole) bool {
	switch role {
	case entity.RoleBuyer:
		return thread.BuyerID == userID
	case entity.RoleSeller:
		return thread.SellerID == userID
	default:
		return thread.BuyerID == userID || thread.SellerID == userID
	}
}

func sortThreads(threads []*entity.ChatThread) {
	sort.Slice(threads, func(i, j int) bool {
		if !threads[i].LastMessageAt.Equal(threads[j].LastMessageAt) {
			return threads[i].LastMessageAt.After(threads[j].LastMessageAt)
		}
		return threads[i].ID < threads[j].ID
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 || offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func copyThread(thread *entity.ChatThread) *entity.ChatThread {
	c := *thread
	return &c
}
