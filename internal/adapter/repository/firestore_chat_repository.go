package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
	"posttrr/pkg/logger"
)

const (
	threadsCollection    = "chatThreads"
	threadKeysCollection = "chatThreadKeys"
	messagesCollection   = "chatMessages"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

// NewFirestoreChatRepository stores threads and messages in top-level collections.
// Thread uniqueness per (listing, buyer) is held by a key document in chatThreadKeys
// that is created in the same transaction as the thread.
func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) FindOrCreateThread(ctx context.Context, thread *entity.ChatThread) (*entity.ChatThread, bool, error) {
	result, created, err := r.findOrCreateThread(ctx, thread)
	if status.Code(err) == codes.AlreadyExists {
		// A concurrent caller created the key first; one more pass reads it.
		result, created, err = r.findOrCreateThread(ctx, thread)
	}
	if err != nil {
		return nil, false, errors.Internal("Failed to open thread", err)
	}

	return result, created, nil
}

func (r *firestoreChatRepository) findOrCreateThread(ctx context.Context, thread *entity.ChatThread) (*entity.ChatThread, bool, error) {
	keyRef := r.client.Collection(threadKeysCollection).Doc(threadKey(thread.ListingID, thread.BuyerID))

	var result *entity.ChatThread
	var created bool

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false

		keyDoc, err := tx.Get(keyRef)
		if err == nil {
			threadID, err := keyDoc.DataAt("threadId")
			if err != nil {
				return err
			}
			id, _ := threadID.(string)

			doc, err := tx.Get(r.client.Collection(threadsCollection).Doc(id))
			if err != nil {
				return err
			}
			var existing entity.ChatThread
			if err := doc.DataTo(&existing); err != nil {
				return err
			}
			result = &existing
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		fresh := *thread
		fresh.ID = uuid.New().String()
		if fresh.CreatedAt.IsZero() {
			fresh.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
		}
		if fresh.LastMessageAt.IsZero() {
			fresh.LastMessageAt = fresh.CreatedAt
		}

		if err := tx.Create(keyRef, map[string]interface{}{
			"threadId":  fresh.ID,
			"listingId": fresh.ListingID,
			"buyerId":   fresh.BuyerID,
		}); err != nil {
			return err
		}
		if err := tx.Create(r.client.Collection(threadsCollection).Doc(fresh.ID), fresh); err != nil {
			return err
		}

		result = &fresh
		created = true
		return nil
	})
	return result, created, err
}

func (r *firestoreChatRepository) GetThreadByID(ctx context.Context, id string) (*entity.ChatThread, error) {
	doc, err := r.client.Collection(threadsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to get thread", err)
	}

	var thread entity.ChatThread
	if err := doc.DataTo(&thread); err != nil {
		return nil, errors.Internal("Failed to parse thread data", err)
	}

	return &thread, nil
}

func (r *firestoreChatRepository) ListThreadsByParticipant(ctx context.Context, userID string, role entity.ParticipantRole, limit, offset int) ([]*entity.ChatThread, int64, error) {
	var threads []*entity.ChatThread

	if role == "" || role == entity.RoleBuyer {
		asBuyer, err := r.threadsWhere(ctx, "buyerId", userID)
		if err != nil {
			return nil, 0, err
		}
		threads = append(threads, asBuyer...)
	}
	if role == "" || role == entity.RoleSeller {
		asSeller, err := r.threadsWhere(ctx, "sellerId", userID)
		if err != nil {
			return nil, 0, err
		}
		threads = append(threads, asSeller...)
	}

	sortThreads(threads)

	// Apply pagination in-memory after merging both sides
	return paginate(threads, limit, offset), int64(len(threads)), nil
}

func (r *firestoreChatRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var total int64

	for _, field := range []string{"buyerId", "sellerId"} {
		threads, err := r.threadsWhere(ctx, field, userID)
		if err != nil {
			return 0, err
		}
		for _, thread := range threads {
			total += thread.UnreadFor(userID)
		}
	}

	return total, nil
}

func (r *firestoreChatRepository) threadsWhere(ctx context.Context, field, userID string) ([]*entity.ChatThread, error) {
	iter := r.client.Collection(threadsCollection).Where(field, "==", userID).Documents(ctx)
	defer iter.Stop()

	var threads []*entity.ChatThread
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while fetching threads for user %s: %v", userID, err)
			return nil, errors.Internal("Failed to fetch threads", err)
		}

		var thread entity.ChatThread
		if err := doc.DataTo(&thread); err != nil {
			logger.Warn("Skipping unreadable thread %s: %v", doc.Ref.ID, err)
			continue
		}
		threads = append(threads, &thread)
	}

	return threads, nil
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, message *entity.ChatMessage) (*entity.ChatThread, error) {
	threadRef := r.client.Collection(threadsCollection).Doc(message.ThreadID)

	var updated entity.ChatThread
	var committed entity.ChatMessage

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(threadRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Thread", err)
			}
			return err
		}

		var thread entity.ChatThread
		if err := doc.DataTo(&thread); err != nil {
			return err
		}

		role, ok := thread.RoleOf(message.SenderID)
		if !ok {
			return errors.Forbidden("You are not a participant of this thread", nil)
		}

		msg := *message
		prepareMessage(&msg, &thread)

		if err := tx.Create(r.client.Collection(messagesCollection).Doc(msg.ID), msg); err != nil {
			return err
		}

		counter := "buyerUnread"
		if role == entity.RoleBuyer {
			counter = "sellerUnread"
		}
		if err := tx.Update(threadRef, []firestore.Update{
			{Path: "lastMessage", Value: entity.PreviewText(msg.Text)},
			{Path: "lastMessageAt", Value: msg.CreatedAt},
			{Path: "messageCount", Value: msg.Seq},
			{Path: counter, Value: firestore.Increment(1)},
		}); err != nil {
			return err
		}

		applyAppend(&thread, &msg, role)
		updated = thread
		committed = msg
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if asAppError(err, &appErr) {
			return nil, appErr
		}
		return nil, errors.Internal("Failed to append message", err)
	}

	*message = committed
	return &updated, nil
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, threadID string, limit, offset int) ([]*entity.ChatMessage, int64, error) {
	thread, err := r.GetThreadByID(ctx, threadID)
	if err != nil {
		return nil, 0, err
	}

	query := r.client.Collection(messagesCollection).
		Where("threadId", "==", threadID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy("seq", firestore.Desc)
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	messages := make([]*entity.ChatMessage, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for thread %s: %v", threadID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.ChatMessage
		if err := doc.DataTo(&message); err != nil {
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	sort.SliceStable(messages, func(i, j int) bool { return messages[j].Before(messages[i]) })

	return messages, thread.MessageCount, nil
}

func (r *firestoreChatRepository) ResetUnread(ctx context.Context, threadID string, role entity.ParticipantRole) (*entity.ChatThread, error) {
	field := "buyerUnread"
	switch role {
	case entity.RoleBuyer:
	case entity.RoleSeller:
		field = "sellerUnread"
	default:
		return nil, errors.InvalidArgument("Unknown participant role", nil)
	}

	_, err := r.client.Collection(threadsCollection).Doc(threadID).Update(ctx, []firestore.Update{
		{Path: field, Value: 0},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to mark thread read", err)
	}

	return r.GetThreadByID(ctx, threadID)
}
