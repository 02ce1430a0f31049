// Package ws streams project conversations to websocket clients and accepts
// turns over the same connection.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/domain"
)

// Connection represents a single WebSocket connection bound to one project.
type Connection struct {
	ID        string
	ProjectID string
	UserID    string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex

	// sendMu guards closed and every send on Send.
	sendMu sync.Mutex
	closed bool
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Projects maps project_id to set of connection IDs
	projects map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *projectFrame
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

type projectFrame struct {
	projectID string
	data      []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		projects:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *projectFrame, 256),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.projects[conn.ProjectID] == nil {
				h.projects[conn.ProjectID] = make(map[string]bool)
			}
			h.projects[conn.ProjectID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("conn_id", conn.ID), zap.String("project_id", conn.ProjectID))

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.projects[msg.projectID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				if err := conn.trySend(msg.data); errors.Is(err, ErrBufferFull) {
					h.logger.Warn("connection buffer full, closing", zap.String("conn_id", connID))
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.projects[conn.ProjectID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.projects, conn.ProjectID)
		}
	}
	conn.closeSend()
	h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		conn.closeSend()
		delete(h.connections, id)
	}
	h.projects = make(map[string]map[string]bool)
}

// NewConnection creates a connection for a project. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn, projectID, userID string) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		UserID:    userID,
		Conn:      ws,
		Send:      make(chan []byte, 256),
	}
}

// Register registers a connection with the hub. It reports false once the
// hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish pushes a stored message to every connection of its project.
// It never blocks the caller; frames are dropped when the hub is saturated.
func (h *Hub) Publish(msg *domain.Message) {
	data, err := encodeFrame(Frame{Type: TypeMessage, Ts: time.Now().UnixMilli(), Message: msg})
	if err != nil {
		h.logger.Error("failed to encode message frame", zap.String("message_id", msg.MessageID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &projectFrame{projectID: msg.ProjectID, data: data}:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("message_id", msg.MessageID))
	}
}

// SendToConnection sends a frame to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return conn.trySend(data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// trySend queues data without blocking.
func (c *Connection) trySend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// closeSend closes Send once. Later sends report ErrConnectionClosed.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrConnectionClosed is returned when sending to a connection the hub has
// already dropped.
var ErrConnectionClosed = errors.New("connection closed")

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
