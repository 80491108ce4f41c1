package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"posttrr/internal/domain/entity"
	"posttrr/internal/infrastructure/websocket"
	"posttrr/pkg/logger"
)

const (
	defaultOutboxSize = 1024
	publishTimeout    = 2 * time.Second
)

// LocalDispatcher receives events for this instance's connections.
type LocalDispatcher interface {
	Publish(event websocket.Event)
}

// RedisBroker relays chat events through a Redis channel so every instance can deliver
// them to its own websocket subscribers.
type RedisBroker struct {
	client  redis.UniversalClient
	channel string
	local   LocalDispatcher
	outbox  chan websocket.Event
}

func NewRedisBroker(client redis.UniversalClient, channel string, local LocalDispatcher, outboxSize int) *RedisBroker {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		local:   local,
		outbox:  make(chan websocket.Event, outboxSize),
	}
}

// Start subscribes to the channel and runs the publisher until ctx is done. It returns
// once the subscription is confirmed.
func (b *RedisBroker) Start(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go b.consume(ctx, sub)
	go b.publishLoop(ctx)

	logger.Info("Redis fan-out subscribed to %s", b.channel)
	return nil
}

func (b *RedisBroker) PublishMessage(message *entity.ChatMessage) {
	event, err := websocket.NewMessageEvent(message)
	if err != nil {
		logger.Error("Redis fan-out: Failed to encode message %s: %v", message.ID, err)
		return
	}
	b.enqueue(event)
}

func (b *RedisBroker) PublishThreadRead(threadID, userID string, readAt time.Time) {
	event, err := websocket.NewThreadReadEvent(threadID, userID, readAt)
	if err != nil {
		logger.Error("Redis fan-out: Failed to encode read event for thread %s: %v", threadID, err)
		return
	}
	b.enqueue(event)
}

func (b *RedisBroker) enqueue(event websocket.Event) {
	select {
	case b.outbox <- event:
	default:
		logger.Warn("Redis fan-out: Outbox full, dropping %s event for thread %s", event.Type, event.ThreadID)
	}
}

func (b *RedisBroker) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.outbox:
			b.publish(ctx, event)
		}
	}
}

// publish falls back to local delivery when Redis is unreachable.
func (b *RedisBroker) publish(ctx context.Context, event websocket.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Redis fan-out: Failed to marshal event: %v", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.client.Publish(pubCtx, b.channel, data).Err(); err != nil {
		logger.Warn("Redis fan-out: Publish failed, delivering locally only: %v", err)
		b.local.Publish(event)
	}
}

func (b *RedisBroker) consume(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event websocket.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Redis fan-out: Ignoring malformed event: %v", err)
				continue
			}
			b.local.Publish(event)
		}
	}
}
