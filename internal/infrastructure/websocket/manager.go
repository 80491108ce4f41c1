package websocket

import (
	"context"
	"sync"

	"posttrr/pkg/logger"
)

const DefaultQueueSize = 1024

// ThreadAuthorizer decides whether a user may subscribe to a thread.
type ThreadAuthorizer interface {
	CanAccessThread(ctx context.Context, threadID, userID string) error
}

// Manager is the connection registry for one server process. It owns every client's
// Send channel: only the manager closes it, and only while holding mutex.
type Manager struct {
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	lastSeq    map[string]int64
	events     chan Event
	authorizer ThreadAuthorizer
	mutex      sync.RWMutex

	ctx context.Context
}

// NewManager creates a new WebSocket connection manager
func NewManager(queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Manager{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		lastSeq: make(map[string]int64),
		events:  make(chan Event, queueSize),
		ctx:     context.Background(),
	}
}

func (m *Manager) SetThreadAuthorizer(authorizer ThreadAuthorizer) {
	m.mutex.Lock()
	m.authorizer = authorizer
	m.mutex.Unlock()
}

// Start runs the dispatcher until ctx is done, then closes every connection.
func (m *Manager) Start(ctx context.Context) {
	m.mutex.Lock()
	m.ctx = ctx
	m.mutex.Unlock()

	go func() {
		for {
			select {
			case event := <-m.events:
				m.dispatch(event)

			case <-ctx.Done():
				m.closeAll()
				return
			}
		}
	}()
}

func (m *Manager) Register(client *Client) {
	m.mutex.Lock()
	m.clients[client] = struct{}{}
	total := len(m.clients)
	m.mutex.Unlock()

	logger.Debug("WebSocket: Client %s registered for user %s (%d connected)", client.ID, client.UserID, total)
}

// Unregister drops every subscription of client and closes its Send channel. Safe to call twice.
func (m *Manager) Unregister(client *Client) {
	m.mutex.Lock()
	removed := m.removeLocked(client)
	total := len(m.clients)
	m.mutex.Unlock()

	if removed {
		logger.Debug("WebSocket: Client %s unregistered for user %s (%d connected)", client.ID, client.UserID, total)
	}
}

// Join subscribes client to threadID. It returns false when the client is no longer registered.
func (m *Manager) Join(client *Client, threadID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return false
	}

	room, ok := m.rooms[threadID]
	if !ok {
		room = make(map[*Client]struct{})
		m.rooms[threadID] = room
	}
	room[client] = struct{}{}
	client.threads[threadID] = struct{}{}

	return true
}

func (m *Manager) Leave(client *Client, threadID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.leaveLocked(client, threadID)
}

// Publish queues an event for delivery. It never blocks; a full queue drops the event.
func (m *Manager) Publish(event Event) {
	select {
	case m.events <- event:
	default:
		logger.Warn("WebSocket: Dispatch queue full, dropping %s event for thread %s", event.Type, event.ThreadID)
	}
}

func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

func (m *Manager) SubscriberCount(threadID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[threadID])
}

func (m *Manager) dispatch(event Event) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room := m.rooms[event.ThreadID]
	if len(room) == 0 {
		return
	}

	if event.Type == EventMessageNew {
		if event.Seq <= m.lastSeq[event.ThreadID] {
			logger.Warn("WebSocket: Dropping stale message seq %d for thread %s", event.Seq, event.ThreadID)
			return
		}
		m.lastSeq[event.ThreadID] = event.Seq
	}

	var slow []*Client
	for client := range room {
		select {
		case client.Send <- event.Payload:
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		logger.Warn("WebSocket: Client %s of user %s is too slow, closing connection", client.ID, client.UserID)
		m.removeLocked(client)
	}
}

// send delivers a direct reply to one registered client.
func (m *Manager) send(client *Client, payload []byte) {
	m.mutex.RLock()
	_, registered := m.clients[client]
	full := false
	if registered {
		select {
		case client.Send <- payload:
		default:
			full = true
		}
	}
	m.mutex.RUnlock()

	if full {
		logger.Warn("WebSocket: Client %s send channel full, closing connection", client.ID)
		m.Unregister(client)
	}
}

func (m *Manager) removeLocked(client *Client) bool {
	if _, ok := m.clients[client]; !ok {
		return false
	}

	for threadID := range client.threads {
		m.leaveLocked(client, threadID)
	}
	delete(m.clients, client)
	close(client.Send)

	return true
}

func (m *Manager) leaveLocked(client *Client, threadID string) {
	delete(client.threads, threadID)

	room, ok := m.rooms[threadID]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(m.rooms, threadID)
		delete(m.lastSeq, threadID)
	}
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for client := range m.clients {
		m.removeLocked(client)
	}
	logger.Info("WebSocket: Manager stopped, all connections closed")
}

func (m *Manager) context() context.Context {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.ctx
}
