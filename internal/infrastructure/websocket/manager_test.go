package websocket

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posttrr/internal/domain/entity"
	apperrors "posttrr/pkg/errors"
	"posttrr/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestClient(userID string, buffer int) *Client {
	return &Client{
		ID:      userID + "-conn",
		UserID:  userID,
		Send:    make(chan []byte, buffer),
		threads: make(map[string]struct{}),
	}
}

type stubAuthorizer struct {
	allowed map[string]string
}

func (a stubAuthorizer) CanAccessThread(ctx context.Context, threadID, userID string) error {
	if a.allowed[threadID+":"+userID] != "" {
		return nil
	}
	return apperrors.Forbidden("You are not a participant of this thread", nil)
}

func receive(t *testing.T, client *Client) WSMessage {
	t.Helper()
	select {
	case payload, ok := <-client.Send:
		require.True(t, ok, "send channel closed")
		var msg WSMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for %s", client.UserID)
		return WSMessage{}
	}
}

func assertNoFrame(t *testing.T, client *Client) {
	t.Helper()
	select {
	case payload := <-client.Send:
		t.Fatalf("unexpected frame for %s: %s", client.UserID, payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func startManager(t *testing.T) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := NewManager(16)
	m.Start(ctx)
	return m
}

func TestJoinAndDispatch(t *testing.T) {
	m := startManager(t)
	buyer := newTestClient("buyer-1", 8)
	seller := newTestClient("seller-1", 8)
	other := newTestClient("other", 8)
	for _, c := range []*Client{buyer, seller, other} {
		m.Register(c)
	}

	m.HandleClientMessage(buyer, []byte(`{"type":"thread:join","thread_id":"t1"}`))
	m.HandleClientMessage(seller, []byte(`{"type":"thread:join","data":{"threadId":"t1"}}`))

	ack := receive(t, buyer)
	assert.Equal(t, MessageTypeJoined, ack.Type)
	assert.Equal(t, "t1", ack.ThreadID)
	assert.Equal(t, MessageTypeJoined, receive(t, seller).Type)
	assert.Equal(t, 2, m.SubscriberCount("t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m1", ThreadID: "t1", SenderID: "buyer-1", Text: "hi", Seq: 1})

	for _, c := range []*Client{buyer, seller} {
		frame := receive(t, c)
		assert.Equal(t, EventMessageNew, frame.Type)
		assert.Equal(t, "t1", frame.ThreadID)
		data := frame.Data.(map[string]interface{})
		message := data["message"].(map[string]interface{})
		assert.Equal(t, "m1", message["id"])
	}
	assertNoFrame(t, other)
}

func TestSameUserClientsShareOnePayload(t *testing.T) {
	m := startManager(t)
	phone := newTestClient("seller-1", 8)
	laptop := newTestClient("seller-1", 8)
	idle := newTestClient("seller-1", 8)
	for _, c := range []*Client{phone, laptop, idle} {
		m.Register(c)
	}

	for _, c := range []*Client{phone, laptop} {
		m.HandleClientMessage(c, []byte(`{"type":"thread:join","thread_id":"t1"}`))
		assert.Equal(t, MessageTypeJoined, receive(t, c).Type)
	}
	assert.Equal(t, 2, m.SubscriberCount("t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m1", ThreadID: "t1", SenderID: "buyer-1", Text: "hi", Seq: 1})

	var payloads [][]byte
	for _, c := range []*Client{phone, laptop} {
		select {
		case payload := <-c.Send:
			payloads = append(payloads, payload)
		case <-time.After(time.Second):
			t.Fatalf("no frame for %s", c.ID)
		}
		assertNoFrame(t, c)
	}
	assert.Equal(t, string(payloads[0]), string(payloads[1]))
	assert.Contains(t, string(payloads[0]), `"id":"m1"`)
	assertNoFrame(t, idle)
}

func TestStaleSequenceIsDropped(t *testing.T) {
	m := startManager(t)
	client := newTestClient("buyer-1", 8)
	m.Register(client)
	require.True(t, m.Join(client, "t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m2", ThreadID: "t1", Seq: 2})
	m.PublishMessage(&entity.ChatMessage{ID: "m1", ThreadID: "t1", Seq: 1})
	m.PublishMessage(&entity.ChatMessage{ID: "m3", ThreadID: "t1", Seq: 3})

	first := receive(t, client)
	second := receive(t, client)
	assert.Equal(t, "m2", first.Data.(map[string]interface{})["message"].(map[string]interface{})["id"])
	assert.Equal(t, "m3", second.Data.(map[string]interface{})["message"].(map[string]interface{})["id"])
	assertNoFrame(t, client)
}

func TestSlowClientIsEvicted(t *testing.T) {
	m := startManager(t)
	slow := newTestClient("slow", 1)
	fast := newTestClient("fast", 8)
	m.Register(slow)
	m.Register(fast)
	require.True(t, m.Join(slow, "t1"))
	require.True(t, m.Join(fast, "t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m1", ThreadID: "t1", Seq: 1})
	m.PublishMessage(&entity.ChatMessage{ID: "m2", ThreadID: "t1", Seq: 2})

	receive(t, fast)
	receive(t, fast)

	assert.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, m.SubscriberCount("t1"))

	<-slow.Send
	_, ok := <-slow.Send
	assert.False(t, ok, "evicted client's channel is closed")
}

func TestLeaveStopsDelivery(t *testing.T) {
	m := startManager(t)
	client := newTestClient("buyer-1", 8)
	m.Register(client)

	m.HandleClientMessage(client, []byte(`{"type":"thread:join","data":"t1"}`))
	assert.Equal(t, MessageTypeJoined, receive(t, client).Type)

	m.HandleClientMessage(client, []byte(`{"type":"thread:leave","thread_id":"t1"}`))
	assert.Equal(t, MessageTypeLeft, receive(t, client).Type)
	assert.Zero(t, m.SubscriberCount("t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m1", ThreadID: "t1", Seq: 1})
	assertNoFrame(t, client)
}

func TestSequenceResetsWhenRoomEmpties(t *testing.T) {
	m := startManager(t)
	client := newTestClient("buyer-1", 8)
	m.Register(client)
	require.True(t, m.Join(client, "t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m5", ThreadID: "t1", Seq: 5})
	receive(t, client)

	m.Leave(client, "t1")
	require.True(t, m.Join(client, "t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m3", ThreadID: "t1", Seq: 3})
	frame := receive(t, client)
	assert.Equal(t, EventMessageNew, frame.Type)
}

func TestJoinDeniedByAuthorizer(t *testing.T) {
	m := startManager(t)
	m.SetThreadAuthorizer(stubAuthorizer{allowed: map[string]string{"t1:buyer-1": "yes"}})

	stranger := newTestClient("stranger", 8)
	buyer := newTestClient("buyer-1", 8)
	m.Register(stranger)
	m.Register(buyer)

	m.HandleClientMessage(stranger, []byte(`{"type":"thread:join","thread_id":"t1"}`))
	denied := receive(t, stranger)
	assert.Equal(t, MessageTypeError, denied.Type)
	assert.Equal(t, apperrors.CodeForbidden, denied.Data.(map[string]interface{})["code"])
	assert.Zero(t, m.SubscriberCount("t1"))

	m.HandleClientMessage(buyer, []byte(`{"type":"thread:join","thread_id":"t1"}`))
	assert.Equal(t, MessageTypeJoined, receive(t, buyer).Type)
}

func TestInvalidClientMessages(t *testing.T) {
	m := startManager(t)
	client := newTestClient("buyer-1", 8)
	m.Register(client)

	m.HandleClientMessage(client, []byte(`not json`))
	assert.Equal(t, MessageTypeError, receive(t, client).Type)

	m.HandleClientMessage(client, []byte(`{"type":"thread:delete"}`))
	assert.Equal(t, MessageTypeError, receive(t, client).Type)

	m.HandleClientMessage(client, []byte(`{"type":"thread:join"}`))
	assert.Equal(t, MessageTypeError, receive(t, client).Type)

	m.HandleClientMessage(client, []byte(`{"type":"ping"}`))
	assert.Equal(t, MessageTypePong, receive(t, client).Type)
}

func TestThreadReadEventIsNotSequenced(t *testing.T) {
	m := startManager(t)
	client := newTestClient("seller-1", 8)
	m.Register(client)
	require.True(t, m.Join(client, "t1"))

	m.PublishMessage(&entity.ChatMessage{ID: "m1", ThreadID: "t1", Seq: 1})
	receive(t, client)

	readAt := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	m.PublishThreadRead("t1", "buyer-1", readAt)

	frame := receive(t, client)
	assert.Equal(t, EventThreadRead, frame.Type)
	data := frame.Data.(map[string]interface{})
	assert.Equal(t, "buyer-1", data["user_id"])
	assert.Equal(t, readAt.Format(time.RFC3339Nano), data["read_at"])
}

func TestUnregisterIsIdempotent(t *testing.T) {
	m := startManager(t)
	client := newTestClient("buyer-1", 8)
	m.Register(client)
	require.True(t, m.Join(client, "t1"))

	m.Unregister(client)
	m.Unregister(client)

	assert.Zero(t, m.ClientCount())
	assert.Zero(t, m.SubscriberCount("t1"))
	assert.False(t, m.Join(client, "t1"))
}

func TestStopClosesConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(4)
	m.Start(ctx)

	client := newTestClient("buyer-1", 1)
	m.Register(client)
	cancel()

	assert.Eventually(t, func() bool { return m.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := <-client.Send
	assert.False(t, ok)
}
