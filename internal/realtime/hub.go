// Package realtime pushes events to connected users over websockets.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"market-service/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// ErrNotConnected is returned when the user has no open connection
var ErrNotConnected = errors.New("user is not connected")

// Message is the envelope written to websocket clients
type Message struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub keeps one websocket connection per user
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  util.GetLogger(),
	}
}

// Register attaches conn to userID, closing any connection it replaces
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[userID]; ok {
		existing.conn.Close()
	} else {
		util.RealtimeConnections.Inc()
	}
	h.clients[userID] = &client{conn: conn}

	h.logger.Info("WebSocket connection registered", zap.String("user_id", userID))
}

// Unregister detaches conn from userID. A connection that was already
// replaced by a newer one is only closed.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[userID]
	if !ok || c.conn != conn {
		conn.Close()
		return
	}

	c.conn.Close()
	delete(h.clients, userID)
	util.RealtimeConnections.Dec()
	h.logger.Info("WebSocket connection unregistered", zap.String("user_id", userID))
}

// IsOnline checks if a user has an open connection
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser writes a message to userID's connection
func (h *Hub) SendToUser(userID string, message Message) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s: %w", userID, ErrNotConnected)
	}

	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.write(data); err != nil {
		h.Unregister(userID, c.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Broadcast sends a message to each connected user in userIDs and skips the
// rest. It returns how many users received it.
func (h *Hub) Broadcast(userIDs []string, message Message) int {
	sent := 0
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		err := h.SendToUser(id, message)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrNotConnected):
		default:
			h.logger.Warn("Failed to push message", zap.String("user_id", id), zap.Error(err))
		}
	}
	return sent
}
