package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"habit-streak-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	mailboxSize  = 50
	writeTimeout = 10 * time.Second
)

// Transport delivers outbound messages to a chat
type Transport interface {
	Send(ctx context.Context, chatID string, msg models.OutboundMessage) error
}

// Pusher delivers a short alert to a user who has no open connection
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

// WSMessage represents a WebSocket frame in either direction
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Text      string      `json:"text,omitempty"`
	PhotoRef  string      `json:"photo_ref,omitempty"`
	HabitID   string      `json:"habit_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla connections allow one concurrent writer
}

func (c *wsClient) write(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages chat connections keyed by chat id. Messages for offline chats
// are kept in a bounded mailbox, delivered on the next connection, and
// announced through the optional Pusher.
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
	mailboxes   map[string][]WSMessage
	pusher      Pusher
}

// NewWSHub creates a new WebSocket hub. pusher may be nil.
func NewWSHub(pusher Pusher) *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
		mailboxes:   make(map[string][]WSMessage),
		pusher:      pusher,
	}
}

// Register registers a new WebSocket connection for a chat and flushes its mailbox
func (h *WSHub) Register(chatID string, conn *websocket.Conn) {
	client := &wsClient{conn: conn}

	h.mu.Lock()
	// Close existing connection if any
	if existing, exists := h.connections[chatID]; exists {
		existing.conn.Close()
	}
	h.connections[chatID] = client
	queued := h.mailboxes[chatID]
	delete(h.mailboxes, chatID)
	h.mu.Unlock()

	log.Info().Str("chat_id", chatID).Int("queued", len(queued)).Msg("WebSocket connection registered")

	for i, msg := range queued {
		if err := client.write(msg); err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to flush mailbox")
			h.requeue(chatID, queued[i:])
			h.Unregister(chatID, conn)
			return
		}
	}
}

// Unregister removes a chat's connection if conn is still the registered one
func (h *WSHub) Unregister(chatID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.connections[chatID]; exists && client.conn == conn {
		client.conn.Close()
		delete(h.connections, chatID)
		log.Info().Str("chat_id", chatID).Msg("WebSocket connection unregistered")
	}
}

// IsOnline checks if a chat has an open connection
func (h *WSHub) IsOnline(chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[chatID]
	return exists
}

// Send delivers a message to a chat, queueing it when the chat is offline
func (h *WSHub) Send(ctx context.Context, chatID string, msg models.OutboundMessage) error {
	frame := WSMessage{
		Type:      "message",
		Timestamp: time.Now().UnixMilli(),
		Message:   msg.Text,
	}
	if msg.PhotoURL != "" || len(msg.Buttons) > 0 {
		frame.Data = map[string]interface{}{
			"photo_url": msg.PhotoURL,
			"buttons":   msg.Buttons,
		}
	}

	h.mu.RLock()
	client, online := h.connections[chatID]
	h.mu.RUnlock()

	if online {
		err := client.write(frame)
		if err == nil {
			deliveryCounter.WithLabelValues("websocket").Inc()
			return nil
		}
		log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to send message, queueing")
		h.Unregister(chatID, client.conn)
	}

	h.requeue(chatID, []WSMessage{frame})
	deliveryCounter.WithLabelValues("queued").Inc()

	if h.pusher != nil {
		if err := h.pusher.Push(ctx, chatID, msg.Text); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID).Msg("Failed to push notification")
		} else {
			deliveryCounter.WithLabelValues("push").Inc()
		}
	}
	return nil
}

// SendError sends an error frame directly to a connection
func (h *WSHub) SendError(chatID, message string) {
	h.mu.RLock()
	client, online := h.connections[chatID]
	h.mu.RUnlock()
	if !online {
		return
	}
	if err := client.write(WSMessage{Type: "error", Message: message}); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to send error frame")
	}
}

// Pending returns the number of queued messages for a chat
func (h *WSHub) Pending(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.mailboxes[chatID])
}

// requeue appends to a chat's mailbox, dropping the oldest frames past mailboxSize
func (h *WSHub) requeue(chatID string, frames []WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	box := append(h.mailboxes[chatID], frames...)
	if len(box) > mailboxSize {
		box = box[len(box)-mailboxSize:]
	}
	h.mailboxes[chatID] = box
}

// CloseAll closes every open connection, used during shutdown
func (h *WSHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for chatID, client := range h.connections {
		client.mu.Lock()
		client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		client.mu.Unlock()
		client.conn.Close()
		delete(h.connections, chatID)
	}
}
