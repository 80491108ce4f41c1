package usecase

import (
	"context"
	"strings"
	"time"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
	"posttrr/pkg/logger"
)

const (
	defaultPushQueueSize = 256
	pushSendTimeout      = 10 * time.Second
)

var devicePlatforms = map[string]bool{"android": true, "ios": true, "web": true}

type pushJob struct {
	recipientID string
	thread      *entity.ChatThread
	message     *entity.ChatMessage
}

// NotificationUseCase keeps device registrations and turns committed messages into push
// notifications on a background worker. A nil sender disables delivery only.
type NotificationUseCase struct {
	tokenRepo repository.DeviceTokenRepository
	sender    PushSender
	queue     chan pushJob
}

func NewNotificationUseCase(tokenRepo repository.DeviceTokenRepository, sender PushSender, queueSize int) *NotificationUseCase {
	if queueSize <= 0 {
		queueSize = defaultPushQueueSize
	}
	return &NotificationUseCase{
		tokenRepo: tokenRepo,
		sender:    sender,
		queue:     make(chan pushJob, queueSize),
	}
}

// Start runs the delivery worker until ctx is done.
func (uc *NotificationUseCase) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-uc.queue:
			uc.deliver(ctx, job)
		}
	}
}

// NotifyNewMessage queues a push for the message recipient. It never blocks.
func (uc *NotificationUseCase) NotifyNewMessage(thread *entity.ChatThread, message *entity.ChatMessage) {
	if uc.sender == nil {
		return
	}

	recipientID := thread.SellerID
	if message.SenderID == thread.SellerID {
		recipientID = thread.BuyerID
	}

	select {
	case uc.queue <- pushJob{recipientID: recipientID, thread: thread, message: message}:
	default:
		logger.Warn("Push queue full, dropping notification for message %s", message.ID)
	}
}

func (uc *NotificationUseCase) RegisterDevice(ctx context.Context, userID, token, platform string) (*entity.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.InvalidArgument("token is required", nil)
	}

	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		platform = "web"
	}
	if !devicePlatforms[platform] {
		return nil, errors.InvalidArgument("platform must be one of: android, ios, web", nil)
	}

	device := &entity.DeviceToken{
		Token:    token,
		UserID:   userID,
		Platform: platform,
	}
	if err := uc.tokenRepo.Save(ctx, device); err != nil {
		logger.Error("RegisterDevice Error: Failed to save token for user %s: %v", userID, err)
		return nil, err
	}

	return device, nil
}

func (uc *NotificationUseCase) UnregisterDevice(ctx context.Context, userID, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.InvalidArgument("token is required", nil)
	}
	return uc.tokenRepo.Delete(ctx, userID, token)
}

func (uc *NotificationUseCase) deliver(ctx context.Context, job pushJob) {
	ctx, cancel := context.WithTimeout(ctx, pushSendTimeout)
	defer cancel()

	devices, err := uc.tokenRepo.ListByUser(ctx, job.recipientID)
	if err != nil {
		logger.Error("Push Error: Failed to load devices for user %s: %v", job.recipientID, err)
		return
	}
	if len(devices) == 0 {
		return
	}

	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		tokens = append(tokens, device.Token)
	}

	notification := &PushNotification{
		Title: "New message",
		Body:  entity.PreviewText(job.message.Text),
		Data: map[string]string{
			"type":      "message:new",
			"threadId":  job.thread.ID,
			"listingId": job.thread.ListingID,
			"messageId": job.message.ID,
		},
	}

	invalid, err := uc.sender.Send(ctx, tokens, notification)
	if err != nil {
		logger.Error("Push Error: Failed to notify user %s about message %s: %v", job.recipientID, job.message.ID, err)
	}

	for _, token := range invalid {
		if err := uc.tokenRepo.Delete(ctx, job.recipientID, token); err != nil {
			logger.Warn("Push: Failed to prune token for user %s: %v", job.recipientID, err)
		}
	}
	if len(invalid) > 0 {
		logger.Info("Push: Pruned %d stale tokens for user %s", len(invalid), job.recipientID)
	}
}
