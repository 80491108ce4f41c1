package usecase

import (
	"context"
	"time"

	"posttrr/internal/domain/entity"
)

// TokenVerifier resolves a bearer token to the authenticated user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// RateLimiter is satisfied by *ratelimit.RateLimiter.
type RateLimiter interface {
	Allow(key, action string) (bool, time.Duration)
}

// EventPublisher hands committed chat events to the realtime layer. Implementations
// must not block the caller.
type EventPublisher interface {
	PublishMessage(message *entity.ChatMessage)
	PublishThreadRead(threadID, userID string, readAt time.Time)
}

// MessageNotifier is told about every committed message. Implementations must not block.
type MessageNotifier interface {
	NotifyNewMessage(thread *entity.ChatThread, message *entity.ChatMessage)
}

type PushNotification struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushSender delivers a notification to device tokens and reports the tokens the
// provider no longer accepts.
type PushSender interface {
	Send(ctx context.Context, tokens []string, notification *PushNotification) (invalidTokens []string, err error)
}
