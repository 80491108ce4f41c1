package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"posttrr/internal/domain/entity"
	apperrors "posttrr/pkg/errors"
	"posttrr/pkg/logger"
)

// Client to server
const (
	MessageTypeJoin  = "thread:join"
	MessageTypeLeave = "thread:leave"
	MessageTypePing  = "ping"
)

// Server to client
const (
	MessageTypeJoined = "thread:joined"
	MessageTypeLeft   = "thread:left"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	EventMessageNew = "message:new"
	EventThreadRead = "thread:read"
)

const authorizeTimeout = 5 * time.Second

// WSMessage is the frame the server writes.
type WSMessage struct {
	Type      string      `json:"type"`
	ThreadID  string      `json:"thread_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ClientMessage is the frame a client sends. Data may be a thread id string or an object.
type ClientMessage struct {
	Type     string          `json:"type"`
	ThreadID string          `json:"thread_id"`
	Data     json.RawMessage `json:"data"`
}

type MessageNewData struct {
	Message *entity.ChatMessage `json:"message"`
}

type ThreadReadData struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	ReadAt   string `json:"read_at"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a thread-scoped frame ready for fan-out. Payload is the encoded WSMessage.
type Event struct {
	Type     string          `json:"type"`
	ThreadID string          `json:"thread_id"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

func NewMessageEvent(message *entity.ChatMessage) (Event, error) {
	payload, err := encode(EventMessageNew, message.ThreadID, MessageNewData{Message: message})
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:     EventMessageNew,
		ThreadID: message.ThreadID,
		Seq:      message.Seq,
		Payload:  payload,
	}, nil
}

func NewThreadReadEvent(threadID, userID string, readAt time.Time) (Event, error) {
	payload, err := encode(EventThreadRead, threadID, ThreadReadData{
		ThreadID: threadID,
		UserID:   userID,
		ReadAt:   readAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:     EventThreadRead,
		ThreadID: threadID,
		Payload:  payload,
	}, nil
}

// PublishMessage fans a committed message out to the thread's local subscribers.
func (m *Manager) PublishMessage(message *entity.ChatMessage) {
	event, err := NewMessageEvent(message)
	if err != nil {
		logger.Error("WebSocket: Failed to encode message %s: %v", message.ID, err)
		return
	}
	m.Publish(event)
}

func (m *Manager) PublishThreadRead(threadID, userID string, readAt time.Time) {
	event, err := NewThreadReadEvent(threadID, userID, readAt)
	if err != nil {
		logger.Error("WebSocket: Failed to encode read event for thread %s: %v", threadID, err)
		return
	}
	m.Publish(event)
}

// HandleClientMessage processes incoming WebSocket messages
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		logger.Debug("WebSocket: Failed to unmarshal message from client %s: %v", client.UserID, err)
		m.sendError(client, "", apperrors.CodeInvalidArgument, "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypeJoin:
		m.handleJoin(client, msg)

	case MessageTypeLeave:
		m.handleLeave(client, msg)

	case MessageTypePing:
		m.reply(client, MessageTypePong, "", map[string]string{"status": "alive"})

	default:
		logger.Debug("WebSocket: Unknown message type '%s' from client %s", msg.Type, client.UserID)
		m.sendError(client, "", apperrors.CodeInvalidArgument, "Unknown message type")
	}
}

func (m *Manager) handleJoin(client *Client, msg ClientMessage) {
	threadID := msg.threadID()
	if threadID == "" {
		m.sendError(client, "", apperrors.CodeInvalidArgument, "Missing thread_id")
		return
	}

	m.mutex.RLock()
	authorizer := m.authorizer
	m.mutex.RUnlock()

	if authorizer != nil {
		ctx, cancel := context.WithTimeout(m.context(), authorizeTimeout)
		err := authorizer.CanAccessThread(ctx, threadID, client.UserID)
		cancel()

		if err != nil {
			code, message := apperrors.CodeInternal, "Could not join thread"
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				code, message = appErr.Code, appErr.Message
			}
			logger.Debug("WebSocket: Client %s denied thread %s: %v", client.UserID, threadID, err)
			m.sendError(client, threadID, code, message)
			return
		}
	}

	if !m.Join(client, threadID) {
		return
	}

	logger.Debug("WebSocket: Client %s joined thread %s", client.UserID, threadID)
	m.reply(client, MessageTypeJoined, threadID, map[string]string{"thread_id": threadID})
}

func (m *Manager) handleLeave(client *Client, msg ClientMessage) {
	threadID := msg.threadID()
	if threadID == "" {
		m.sendError(client, "", apperrors.CodeInvalidArgument, "Missing thread_id")
		return
	}

	m.Leave(client, threadID)
	m.reply(client, MessageTypeLeft, threadID, map[string]string{"thread_id": threadID})
}

// threadID accepts {"thread_id": ...}, {"data": "id"} and {"data": {"thread_id": "id"}}.
func (msg ClientMessage) threadID() string {
	if id := strings.TrimSpace(msg.ThreadID); id != "" {
		return id
	}
	if len(msg.Data) == 0 {
		return ""
	}

	var id string
	if err := json.Unmarshal(msg.Data, &id); err == nil {
		return strings.TrimSpace(id)
	}

	var obj struct {
		ThreadID  string `json:"thread_id"`
		CamelCase string `json:"threadId"`
	}
	if err := json.Unmarshal(msg.Data, &obj); err == nil {
		if obj.ThreadID != "" {
			return strings.TrimSpace(obj.ThreadID)
		}
		return strings.TrimSpace(obj.CamelCase)
	}
	return ""
}

func (m *Manager) reply(client *Client, messageType, threadID string, data interface{}) {
	payload, err := encode(messageType, threadID, data)
	if err != nil {
		logger.Error("WebSocket: Failed to marshal %s for client %s: %v", messageType, client.UserID, err)
		return
	}
	m.send(client, payload)
}

func (m *Manager) sendError(client *Client, threadID, code, message string) {
	m.reply(client, MessageTypeError, threadID, ErrorData{Code: code, Message: message})
}

func encode(messageType, threadID string, data interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      messageType,
		ThreadID:  threadID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
