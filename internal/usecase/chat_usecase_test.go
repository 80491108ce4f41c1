package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posttrr/internal/adapter/repository"
	"posttrr/internal/domain/entity"
	"posttrr/internal/infrastructure/ratelimit"
	"posttrr/pkg/errors"
	"posttrr/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*entity.ChatMessage
	reads    []string
}

func (p *recordingPublisher) PublishMessage(message *entity.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

func (p *recordingPublisher) PublishThreadRead(threadID, userID string, readAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, threadID+":"+userID)
}

type recordingNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *recordingNotifier) NotifyNewMessage(thread *entity.ChatThread, message *entity.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, message.ID)
}

type chatFixture struct {
	uc        *ChatUseCase
	publisher *recordingPublisher
	notifier  *recordingNotifier
}

func newChatFixture(t *testing.T, limiter RateLimiter) *chatFixture {
	t.Helper()

	listings := repository.NewMemoryListingRepository()
	ctx := context.Background()
	for _, listing := range []*entity.Listing{
		{ID: "bike-1", OwnerID: "seller-1", Title: "Road bike"},
		{ID: "sofa-2", OwnerID: "seller-2", Title: "Green sofa"},
	} {
		require.NoError(t, listings.Save(ctx, listing))
	}

	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}
	uc := NewChatUseCase(repository.NewMemoryChatRepository(), listings, publisher, notifier, limiter)

	return &chatFixture{uc: uc, publisher: publisher, notifier: notifier}
}

func TestOpenThreadIsIdempotent(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	first, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", first.BuyerID)
	assert.Equal(t, "seller-1", first.SellerID)
	assert.Equal(t, "bike-1", first.ListingID)
	assert.Zero(t, first.MessageCount)

	second, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestOpenThreadConcurrentCallsShareOneThread(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	const callers = 20
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
			if assert.NoError(t, err) {
				ids[i] = thread.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestOpenThreadErrors(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	_, err := f.uc.OpenThread(ctx, "seller-1", "bike-1")
	assert.True(t, errors.Is(err, errors.CodeInvalidOperation), "owner cannot open a thread on their listing")

	_, err = f.uc.OpenThread(ctx, "buyer-1", "missing")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.uc.OpenThread(ctx, "buyer-1", "")
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = f.uc.OpenThread(ctx, "buyer-1", "bike/1")
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestPostMessageUpdatesThread(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	message, err := f.uc.PostMessage(ctx, thread.ID, "buyer-1", "  Is it still available?  ")
	require.NoError(t, err)
	assert.Equal(t, "Is it still available?", message.Text)
	assert.Equal(t, int64(1), message.Seq)
	assert.Equal(t, time.UTC, message.CreatedAt.Location())

	updated, err := f.uc.GetThread(ctx, "seller-1", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "Is it still available?", updated.LastMessage)
	assert.True(t, updated.LastMessageAt.Equal(message.CreatedAt))
	assert.Equal(t, int64(1), updated.SellerUnread)
	assert.Zero(t, updated.BuyerUnread)

	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, message.ID, f.publisher.messages[0].ID)
	assert.Equal(t, []string{message.ID}, f.notifier.notified)
}

func TestPostMessageValidation(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", " \n\t ")
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", strings.Repeat("x", entity.MaxMessageLength+1))
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", strings.Repeat("ü", entity.MaxMessageLength))
	assert.NoError(t, err, "length is counted in characters")

	_, err = f.uc.PostMessage(ctx, thread.ID, "stranger", "hello")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.uc.PostMessage(ctx, "missing", "buyer-1", "hello")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	assert.Len(t, f.publisher.messages, 1)
}

func TestConcurrentPostsKeepCountersConsistent(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	const fromBuyer, fromSeller = 40, 25
	var wg sync.WaitGroup
	post := func(sender string, n int) {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := f.uc.PostMessage(ctx, thread.ID, sender, fmt.Sprintf("%s #%d", sender, i))
				assert.NoError(t, err)
			}(i)
		}
	}
	post("buyer-1", fromBuyer)
	post("seller-1", fromSeller)
	wg.Wait()

	updated, err := f.uc.GetThread(ctx, "buyer-1", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(fromBuyer+fromSeller), updated.MessageCount)
	assert.Equal(t, int64(fromBuyer), updated.SellerUnread)
	assert.Equal(t, int64(fromSeller), updated.BuyerUnread)

	messages, total, err := f.uc.ListMessages(ctx, thread.ID, "seller-1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(fromBuyer+fromSeller), total)
	require.Len(t, messages, fromBuyer+fromSeller)
	assert.True(t, updated.LastMessageAt.Equal(messages[0].CreatedAt))
	assert.Equal(t, int64(fromBuyer+fromSeller), messages[0].Seq)
}

func TestMarkThreadReadOnlyClearsCaller(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", "hi")
	require.NoError(t, err)
	_, err = f.uc.PostMessage(ctx, thread.ID, "seller-1", "hello")
	require.NoError(t, err)

	updated, err := f.uc.MarkThreadRead(ctx, thread.ID, "seller-1")
	require.NoError(t, err)
	assert.Zero(t, updated.SellerUnread)
	assert.Equal(t, int64(1), updated.BuyerUnread)
	assert.Equal(t, []string{thread.ID + ":seller-1"}, f.publisher.reads)

	_, err = f.uc.MarkThreadRead(ctx, thread.ID, "stranger")
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestListMessagesForbiddenForStranger(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	_, _, err = f.uc.ListMessages(ctx, thread.ID, "stranger", 10, 0)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.uc.GetThread(ctx, "stranger", thread.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	assert.Error(t, f.uc.CanAccessThread(ctx, thread.ID, "stranger"))
	assert.NoError(t, f.uc.CanAccessThread(ctx, thread.ID, "seller-1"))
}

func TestListRejectsNegativeWindow(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	_, _, err = f.uc.ListMessages(ctx, thread.ID, "buyer-1", 10, -20)
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, _, err = f.uc.ListThreads(ctx, "buyer-1", "", 10, -20)
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, _, err = f.uc.ListThreads(ctx, "buyer-1", "", -1, 0)
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestListThreadsRoleFilter(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	bought, err := f.uc.OpenThread(ctx, "seller-2", "bike-1")
	require.NoError(t, err)
	sold, err := f.uc.OpenThread(ctx, "buyer-1", "sofa-2")
	require.NoError(t, err)

	all, total, err := f.uc.ListThreads(ctx, "seller-2", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	buying, _, err := f.uc.ListThreads(ctx, "seller-2", "buyer", 10, 0)
	require.NoError(t, err)
	require.Len(t, buying, 1)
	assert.Equal(t, bought.ID, buying[0].ID)

	selling, _, err := f.uc.ListThreads(ctx, "seller-2", "SELLER", 10, 0)
	require.NoError(t, err)
	require.Len(t, selling, 1)
	assert.Equal(t, sold.ID, selling[0].ID)

	_, _, err = f.uc.ListThreads(ctx, "seller-2", "admin", 10, 0)
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestUnreadSummary(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	first, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)
	second, err := f.uc.OpenThread(ctx, "buyer-1", "sofa-2")
	require.NoError(t, err)

	for _, post := range []struct{ thread, sender string }{
		{first.ID, "seller-1"},
		{first.ID, "seller-1"},
		{second.ID, "seller-2"},
		{second.ID, "buyer-1"},
	} {
		_, err := f.uc.PostMessage(ctx, post.thread, post.sender, "ping")
		require.NoError(t, err)
	}

	summary, err := f.uc.UnreadSummary(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Total)

	summary, err = f.uc.UnreadSummary(ctx, "seller-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Total)
}

func TestPostMessageRateLimited(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage:  ratelimit.PerMinute(2),
		ratelimit.ActionCreateThread: ratelimit.PerHour(10),
	})
	f := newChatFixture(t, limiter)
	ctx := context.Background()
	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.uc.PostMessage(ctx, thread.ID, "buyer-1", "hi")
		require.NoError(t, err)
	}

	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", "hi")
	require.True(t, errors.Is(err, errors.CodeTooManyRequests))

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Positive(t, appErr.RetryAfter)

	_, err = f.uc.PostMessage(ctx, thread.ID, "seller-1", "the other side is not limited")
	assert.NoError(t, err)
}

func TestOpenThreadRateLimited(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionCreateThread: ratelimit.PerHour(1),
	})
	f := newChatFixture(t, limiter)
	ctx := context.Background()

	_, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	_, err = f.uc.OpenThread(ctx, "buyer-1", "sofa-2")
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))

	_, err = f.uc.OpenThread(ctx, "seller-1", "bike-1")
	assert.True(t, errors.Is(err, errors.CodeInvalidOperation), "ownership is checked before the limit")
}

func TestConversationScenario(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	thread, err := f.uc.OpenThread(ctx, "buyer-1", "bike-1")
	require.NoError(t, err)

	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", "Hi! Is the bike available?")
	require.NoError(t, err)
	_, err = f.uc.PostMessage(ctx, thread.ID, "seller-1", "Yes, come by tomorrow.")
	require.NoError(t, err)
	_, err = f.uc.PostMessage(ctx, thread.ID, "buyer-1", "Great, see you at 10.")
	require.NoError(t, err)

	sellerThreads, _, err := f.uc.ListThreads(ctx, "seller-1", "seller", 10, 0)
	require.NoError(t, err)
	require.Len(t, sellerThreads, 1)
	assert.Equal(t, int64(2), sellerThreads[0].SellerUnread)
	assert.Equal(t, "Great, see you at 10.", sellerThreads[0].LastMessage)

	_, err = f.uc.MarkThreadRead(ctx, thread.ID, "seller-1")
	require.NoError(t, err)

	page, total, err := f.uc.ListMessages(ctx, thread.ID, "seller-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "Great, see you at 10.", page[0].Text)
	assert.Equal(t, "Yes, come by tomorrow.", page[1].Text)

	older, _, err := f.uc.ListMessages(ctx, thread.ID, "seller-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "Hi! Is the bike available?", older[0].Text)

	summary, err := f.uc.UnreadSummary(ctx, "seller-1")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)

	summary, err = f.uc.UnreadSummary(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Total)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, validateID("threadId", "abc-123"))
	assert.Error(t, validateID("threadId", ""))
	assert.Error(t, validateID("threadId", " abc"))
	assert.Error(t, validateID("threadId", "a/b"))
	assert.Error(t, validateID("threadId", "a\x00b"))
	assert.Error(t, validateID("threadId", strings.Repeat("a", maxIDLength+1)))
}
