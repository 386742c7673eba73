package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventHandler consumes inbound chat events
type EventHandler interface {
	Handle(ctx context.Context, ev models.InboundEvent)
}

// WebSocketHandler turns WebSocket frames into chat events
type WebSocketHandler struct {
	hub         *services.WSHub
	userService *services.UserService
	events      EventHandler
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, userService *services.UserService, events EventHandler) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		userService: userService,
		events:      events,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	// The chat id of a user's conversation is the user id.
	chatID := userID
	h.hub.Register(chatID, conn)
	defer h.hub.Unregister(chatID, conn)

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.hub.SendError(chatID, "Invalid message format")
			continue
		}

		ev, ok := toEvent(msg, userID, chatID, time.Now())
		if !ok {
			h.hub.SendError(chatID, "Unknown message type")
			continue
		}
		h.events.Handle(ctx, ev)
	}
}

// toEvent maps a client frame onto an inbound event
func toEvent(msg services.WSMessage, userID, chatID string, receivedAt time.Time) (models.InboundEvent, bool) {
	ev := models.InboundEvent{
		Type:      msg.Type,
		UserID:    userID,
		ChatID:    chatID,
		Timestamp: receivedAt,
	}

	switch msg.Type {
	case models.EventCommand:
		ev.Payload.Text = msg.Text
	case models.EventPhoto:
		ev.Payload.PhotoRef = msg.PhotoRef
		ev.Payload.HabitID = msg.HabitID
	case models.EventCallback:
		data, _ := msg.Data.(string)
		ev.Payload.Data = data
	default:
		return models.InboundEvent{}, false
	}
	return ev, true
}
