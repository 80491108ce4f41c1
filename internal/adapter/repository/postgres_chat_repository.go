package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
	"posttrr/pkg/errors"
)

const threadColumns = `id, listing_id, buyer_id, seller_id, last_message, last_message_at,
	buyer_unread, seller_unread, message_count, created_at`

type postgresChatRepository struct {
	db TxBeginner
}

// NewPostgresChatRepository relies on the (listing_id, buyer_id) unique constraint for
// thread uniqueness and on row locks for append ordering.
func NewPostgresChatRepository(db TxBeginner) repository.ChatRepository {
	return &postgresChatRepository{db: db}
}

func scanThread(row pgx.Row) (*entity.ChatThread, error) {
	var thread entity.ChatThread
	err := row.Scan(
		&thread.ID,
		&thread.ListingID,
		&thread.BuyerID,
		&thread.SellerID,
		&thread.LastMessage,
		&thread.LastMessageAt,
		&thread.BuyerUnread,
		&thread.SellerUnread,
		&thread.MessageCount,
		&thread.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	thread.LastMessageAt = thread.LastMessageAt.UTC()
	thread.CreatedAt = thread.CreatedAt.UTC()
	return &thread, nil
}

func (r *postgresChatRepository) FindOrCreateThread(ctx context.Context, thread *entity.ChatThread) (*entity.ChatThread, bool, error) {
	createdAt := thread.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	lastMessageAt := thread.LastMessageAt
	if lastMessageAt.IsZero() {
		lastMessageAt = createdAt
	}

	query := `
		INSERT INTO chat_threads (id, listing_id, buyer_id, seller_id, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (listing_id, buyer_id) DO NOTHING
		RETURNING ` + threadColumns

	created, err := scanThread(r.db.QueryRow(ctx, query,
		uuid.New().String(),
		thread.ListingID,
		thread.BuyerID,
		thread.SellerID,
		lastMessageAt,
		createdAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Internal("Failed to open thread", err)
	}

	existing, err := scanThread(r.db.QueryRow(ctx,
		`SELECT `+threadColumns+` FROM chat_threads WHERE listing_id = $1 AND buyer_id = $2`,
		thread.ListingID, thread.BuyerID,
	))
	if err != nil {
		return nil, false, errors.Internal("Failed to load existing thread", err)
	}

	return existing, false, nil
}

func (r *postgresChatRepository) GetThreadByID(ctx context.Context, id string) (*entity.ChatThread, error) {
	return getThread(ctx, r.db, id, "")
}

func getThread(ctx context.Context, db DBTX, id, lock string) (*entity.ChatThread, error) {
	thread, err := scanThread(db.QueryRow(ctx, `SELECT `+threadColumns+` FROM chat_threads WHERE id = $1 `+lock, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to get thread", err)
	}
	return thread, nil
}

func participantClause(role entity.ParticipantRole) string {
	switch role {
	case entity.RoleBuyer:
		return "buyer_id = $1"
	case entity.RoleSeller:
		return "seller_id = $1"
	default:
		return "(buyer_id = $1 OR seller_id = $1)"
	}
}

func (r *postgresChatRepository) ListThreadsByParticipant(ctx context.Context, userID string, role entity.ParticipantRole, limit, offset int) ([]*entity.ChatThread, int64, error) {
	where := participantClause(role)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_threads WHERE `+where, userID).Scan(&total); err != nil {
		return nil, 0, errors.Internal("Failed to count threads", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM chat_threads
		WHERE %s
		ORDER BY last_message_at DESC, id ASC
		LIMIT $2 OFFSET $3
	`, threadColumns, where)

	rows, err := r.db.Query(ctx, query, userID, limitArg(limit), offset)
	if err != nil {
		return nil, 0, errors.Internal("Failed to list threads", err)
	}
	defer rows.Close()

	threads := make([]*entity.ChatThread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, 0, errors.Internal("Failed to read thread", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Internal("Failed to list threads", err)
	}

	return threads, total, nil
}

func (r *postgresChatRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN buyer_id = $1 THEN buyer_unread ELSE seller_unread END), 0)
		FROM chat_threads
		WHERE buyer_id = $1 OR seller_id = $1
	`

	var total int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}
	return total, nil
}

func (r *postgresChatRepository) AppendMessage(ctx context.Context, message *entity.ChatMessage) (*entity.ChatThread, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, errors.Internal("Failed to start transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	thread, err := getThread(ctx, tx, message.ThreadID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}

	role, ok := thread.RoleOf(message.SenderID)
	if !ok {
		return nil, errors.Forbidden("You are not a participant of this thread", nil)
	}

	msg := *message
	prepareMessage(&msg, thread)

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, thread_id, sender_id, text, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ThreadID, msg.SenderID, msg.Text, msg.Seq, msg.CreatedAt)
	if err != nil {
		return nil, errors.Internal("Failed to insert message", err)
	}

	counter := "buyer_unread"
	if role == entity.RoleBuyer {
		counter = "seller_unread"
	}

	updated, err := scanThread(tx.QueryRow(ctx, fmt.Sprintf(`
		UPDATE chat_threads
		SET last_message = $2,
			last_message_at = $3,
			message_count = $4,
			%[1]s = %[1]s + 1
		WHERE id = $1
		RETURNING %[2]s
	`, counter, threadColumns), thread.ID, entity.PreviewText(msg.Text), msg.CreatedAt, msg.Seq))
	if err != nil {
		return nil, errors.Internal("Failed to update thread", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Internal("Failed to commit message", err)
	}

	*message = msg
	return updated, nil
}

func (r *postgresChatRepository) ListMessages(ctx context.Context, threadID string, limit, offset int) ([]*entity.ChatMessage, int64, error) {
	thread, err := r.GetThreadByID(ctx, threadID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, thread_id, sender_id, text, seq, created_at
		FROM chat_messages
		WHERE thread_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`, threadID, limitArg(limit), offset)
	if err != nil {
		return nil, 0, errors.Internal("Failed to list messages", err)
	}
	defer rows.Close()

	messages := make([]*entity.ChatMessage, 0)
	for rows.Next() {
		var message entity.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.ThreadID,
			&message.SenderID,
			&message.Text,
			&message.Seq,
			&message.CreatedAt,
		); err != nil {
			return nil, 0, errors.Internal("Failed to read message", err)
		}
		message.CreatedAt = message.CreatedAt.UTC()
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Internal("Failed to list messages", err)
	}

	return messages, thread.MessageCount, nil
}

func (r *postgresChatRepository) ResetUnread(ctx context.Context, threadID string, role entity.ParticipantRole) (*entity.ChatThread, error) {
	var column string
	switch role {
	case entity.RoleBuyer:
		column = "buyer_unread"
	case entity.RoleSeller:
		column = "seller_unread"
	default:
		return nil, errors.InvalidArgument("Unknown participant role", nil)
	}

	thread, err := scanThread(r.db.QueryRow(ctx,
		`UPDATE chat_threads SET `+column+` = 0 WHERE id = $1 RETURNING `+threadColumns,
		threadID,
	))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to mark thread read", err)
	}

	return thread, nil
}
