package usecase

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/internal/infrastructure/ratelimit"
	"posttrr/pkg/errors"
	"posttrr/pkg/logger"
)

const maxIDLength = 128

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	listingRepo repository.ListingRepository
	publisher   EventPublisher
	notifier    MessageNotifier
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewChatUseCase wires the thread registry and message ledger. publisher, notifier and
// rateLimiter may be nil.
func NewChatUseCase(
	chatRepo repository.ChatRepository,
	listingRepo repository.ListingRepository,
	publisher EventPublisher,
	notifier MessageNotifier,
	rateLimiter RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		chatRepo:    chatRepo,
		listingRepo: listingRepo,
		publisher:   publisher,
		notifier:    notifier,
		rateLimiter: rateLimiter,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

type UnreadSummary struct {
	Total int64 `json:"total"`
}

// OpenThread returns the requester's conversation about a listing, creating it on first contact.
func (uc *ChatUseCase) OpenThread(ctx context.Context, requesterID, listingID string) (*entity.ChatThread, error) {
	if err := validateID("listingId", listingID); err != nil {
		return nil, err
	}
	if err := validateID("user id", requesterID); err != nil {
		return nil, err
	}

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		logger.Debug("OpenThread Error: Listing %s lookup failed: %v", listingID, err)
		return nil, err
	}

	if listing.OwnerID == requesterID {
		return nil, errors.InvalidOperation("You cannot start a conversation on your own listing")
	}

	if err := uc.allow(requesterID, ratelimit.ActionCreateThread, "Rate limit exceeded. Please wait before starting another conversation"); err != nil {
		return nil, err
	}

	now := uc.now()
	thread, created, err := uc.chatRepo.FindOrCreateThread(ctx, &entity.ChatThread{
		ListingID:     listing.ID,
		BuyerID:       requesterID,
		SellerID:      listing.OwnerID,
		CreatedAt:     now,
		LastMessageAt: now,
	})
	if err != nil {
		logger.Error("OpenThread Error: Failed to find or create thread for listing %s buyer %s: %v", listingID, requesterID, err)
		return nil, err
	}

	if created {
		logger.Info("Thread %s opened on listing %s by buyer %s", thread.ID, listing.ID, requesterID)
	}

	return thread, nil
}

// ListThreads pages through the user's threads, newest activity first. role is "", "buyer" or "seller".
func (uc *ChatUseCase) ListThreads(ctx context.Context, userID, role string, limit, offset int) ([]*entity.ChatThread, int64, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, 0, err
	}
	if err := validateWindow(limit, offset); err != nil {
		return nil, 0, err
	}

	var participantRole entity.ParticipantRole
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "":
	case string(entity.RoleBuyer):
		participantRole = entity.RoleBuyer
	case string(entity.RoleSeller):
		participantRole = entity.RoleSeller
	default:
		return nil, 0, errors.InvalidArgument("role must be one of: buyer, seller", nil)
	}

	threads, total, err := uc.chatRepo.ListThreadsByParticipant(ctx, userID, participantRole, limit, offset)
	if err != nil {
		logger.Error("ListThreads Error: Failed to list threads for user %s: %v", userID, err)
		return nil, 0, err
	}

	return threads, total, nil
}

func (uc *ChatUseCase) GetThread(ctx context.Context, userID, threadID string) (*entity.ChatThread, error) {
	thread, _, err := uc.participantThread(ctx, threadID, userID)
	return thread, err
}

// PostMessage appends text to the thread and notifies subscribers after the write commits.
func (uc *ChatUseCase) PostMessage(ctx context.Context, threadID, senderID, text string) (*entity.ChatMessage, error) {
	if err := validateID("threadId", threadID); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.InvalidArgument("Message text is required", nil)
	}
	if utf8.RuneCountInString(text) > entity.MaxMessageLength {
		return nil, errors.InvalidArgument("Message text must be at most 2000 characters", nil)
	}

	if err := uc.allow(senderID, ratelimit.ActionSendMessage, "Rate limit exceeded. Please wait before sending another message"); err != nil {
		return nil, err
	}

	if _, _, err := uc.participantThread(ctx, threadID, senderID); err != nil {
		return nil, err
	}

	message := &entity.ChatMessage{
		ThreadID:  threadID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: uc.now(),
	}

	thread, err := uc.chatRepo.AppendMessage(ctx, message)
	if err != nil {
		logger.Error("PostMessage Error: Failed to append message to thread %s: %v", threadID, err)
		return nil, err
	}

	logger.Debug("PostMessage: Thread %s seq %d committed by %s", threadID, message.Seq, senderID)

	if uc.publisher != nil {
		uc.publisher.PublishMessage(message)
	}
	if uc.notifier != nil {
		uc.notifier.NotifyNewMessage(thread, message)
	}

	return message, nil
}

// ListMessages returns newest-first pages: offset 0 holds the latest messages.
func (uc *ChatUseCase) ListMessages(ctx context.Context, threadID, requesterID string, limit, offset int) ([]*entity.ChatMessage, int64, error) {
	if _, _, err := uc.participantThread(ctx, threadID, requesterID); err != nil {
		return nil, 0, err
	}
	if err := validateWindow(limit, offset); err != nil {
		return nil, 0, err
	}

	messages, total, err := uc.chatRepo.ListMessages(ctx, threadID, limit, offset)
	if err != nil {
		logger.Error("ListMessages Error: Failed to list messages for thread %s: %v", threadID, err)
		return nil, 0, err
	}

	return messages, total, nil
}

// MarkThreadRead zeroes the requester's own unread counter.
func (uc *ChatUseCase) MarkThreadRead(ctx context.Context, threadID, requesterID string) (*entity.ChatThread, error) {
	_, role, err := uc.participantThread(ctx, threadID, requesterID)
	if err != nil {
		return nil, err
	}

	thread, err := uc.chatRepo.ResetUnread(ctx, threadID, role)
	if err != nil {
		logger.Error("MarkThreadRead Error: Failed to reset %s counter on thread %s: %v", role, threadID, err)
		return nil, err
	}

	if uc.publisher != nil {
		uc.publisher.PublishThreadRead(threadID, requesterID, uc.now())
	}

	return thread, nil
}

func (uc *ChatUseCase) UnreadSummary(ctx context.Context, userID string) (*UnreadSummary, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, err
	}

	total, err := uc.chatRepo.CountUnread(ctx, userID)
	if err != nil {
		logger.Error("UnreadSummary Error: Failed to count unread for user %s: %v", userID, err)
		return nil, err
	}

	return &UnreadSummary{Total: total}, nil
}

// CanAccessThread reports whether userID may subscribe to threadID.
func (uc *ChatUseCase) CanAccessThread(ctx context.Context, threadID, userID string) error {
	_, _, err := uc.participantThread(ctx, threadID, userID)
	return err
}

func (uc *ChatUseCase) participantThread(ctx context.Context, threadID, userID string) (*entity.ChatThread, entity.ParticipantRole, error) {
	if err := validateID("threadId", threadID); err != nil {
		return nil, "", err
	}

	thread, err := uc.chatRepo.GetThreadByID(ctx, threadID)
	if err != nil {
		return nil, "", err
	}

	role, ok := thread.RoleOf(userID)
	if !ok {
		logger.Warn("User %s is not a participant in thread %s", userID, threadID)
		return nil, "", errors.Forbidden("You are not a participant of this thread", nil)
	}

	return thread, role, nil
}

func (uc *ChatUseCase) allow(userID, action, message string) error {
	if uc.rateLimiter == nil {
		return nil
	}

	allowed, waitTime := uc.rateLimiter.Allow(userID, action)
	if !allowed {
		logger.Warn("Rate limited: user %s action %s must wait %v", userID, action, waitTime)
		return errors.TooManyRequests(message, waitTime)
	}
	return nil
}

func validateWindow(limit, offset int) error {
	if limit < 0 || offset < 0 {
		return errors.InvalidArgument("limit and offset must not be negative", nil)
	}
	return nil
}

func validateID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.InvalidArgument(name+" is required", nil)
	}
	if len(id) > maxIDLength || strings.Contains(id, "/") || strings.IndexFunc(id, unicode.IsControl) >= 0 || strings.TrimSpace(id) != id {
		return errors.InvalidArgument(name+" is malformed", nil)
	}
	return nil
}
