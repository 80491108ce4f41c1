package firebase

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"posttrr/internal/usecase"
	"posttrr/pkg/logger"
)

// FCM accepts at most 500 tokens per multicast request.
const maxMulticastTokens = 500

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client multicastClient
}

func NewFCMSender(client *messaging.Client) *FCMSender {
	return &FCMSender{client: client}
}

func (s *FCMSender) Send(ctx context.Context, tokens []string, notification *usecase.PushNotification) ([]string, error) {
	var invalid []string

	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := start + maxMulticastTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: notification.Title,
				Body:  notification.Body,
			},
			Data: notification.Data,
		})
		if err != nil {
			return invalid, fmt.Errorf("fcm multicast: %w", err)
		}

		for i, result := range resp.Responses {
			if result.Success {
				continue
			}
			if messaging.IsUnregistered(result.Error) || messaging.IsInvalidArgument(result.Error) {
				invalid = append(invalid, batch[i])
				continue
			}
			logger.Warn("FCM: Delivery to token %d of batch failed: %v", i, result.Error)
		}

		logger.Debug("FCM: Sent %d, failed %d", resp.SuccessCount, resp.FailureCount)
	}

	return invalid, nil
}
