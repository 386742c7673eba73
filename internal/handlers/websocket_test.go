package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"
	"habit-streak-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEvent(t *testing.T) {
	at := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

	ev, ok := toEvent(services.WSMessage{Type: "command", Text: "/help"}, "u1", "u1", at)
	require.True(t, ok)
	assert.Equal(t, models.EventCommand, ev.Type)
	assert.Equal(t, "/help", ev.Payload.Text)
	assert.Equal(t, at, ev.Timestamp)

	ev, ok = toEvent(services.WSMessage{Type: "photo", PhotoRef: "proofs/u1/a.jpg", HabitID: "h1"}, "u1", "u1", at)
	require.True(t, ok)
	assert.Equal(t, "proofs/u1/a.jpg", ev.Payload.PhotoRef)
	assert.Equal(t, "h1", ev.Payload.HabitID)

	ev, ok = toEvent(services.WSMessage{Type: "callback", Data: "approve:s1"}, "admin", "admin", at)
	require.True(t, ok)
	assert.Equal(t, "approve:s1", ev.Payload.Data)

	ev, ok = toEvent(services.WSMessage{Type: "callback", Data: 42.0}, "u1", "u1", at)
	require.True(t, ok)
	assert.Empty(t, ev.Payload.Data)

	_, ok = toEvent(services.WSMessage{Type: "sticker"}, "u1", "u1", at)
	assert.False(t, ok)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.InboundEvent
	got    chan struct{}
}

func (r *eventRecorder) Handle(_ context.Context, ev models.InboundEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func TestHandleWebSocket(t *testing.T) {
	users := services.NewUserService(repository.NewMemoryStore().Users(), "secret")
	user, err := users.CreateUser(context.Background())
	require.NoError(t, err)

	hub := services.NewWSHub(nil)
	recorder := &eventRecorder{got: make(chan struct{}, 1)}
	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, users, recorder).HandleWebSocket))
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+user.Token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "sticker"}))
	var frame services.WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "Unknown message type", frame.Message)

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "command", Text: "/progress"}))
	select {
	case <-recorder.got:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.events, 1)
	assert.Equal(t, user.ID, recorder.events[0].UserID)
	assert.Equal(t, user.ID, recorder.events[0].ChatID)
	assert.Equal(t, "/progress", recorder.events[0].Payload.Text)
	assert.True(t, hub.IsOnline(user.ID))
}
