package handlers

import (
	"context"
	"testing"

	"habit-streak-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{text: "/add_habit Reading 20:00", name: "add_habit", args: []string{"Reading", "20:00"}, ok: true},
		{text: "  /HELP  ", name: "help", args: []string{}, ok: true},
		{text: "/progress@habit_bot", name: "progress", args: []string{}, ok: true},
		{text: "hello there"},
		{text: "/"},
		{text: ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseCommand(tt.text)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}
}

func noop(context.Context, models.InboundEvent, []string) (models.OutboundMessage, error) {
	return models.OutboundMessage{Text: "ok"}, nil
}

func TestRegistryLookupAndHelp(t *testing.T) {
	r := NewRegistry()
	r.Register(Command{Name: "progress", Aliases: []string{"stats"}, Usage: "/progress - streaks", Handle: noop})
	r.Register(Command{Name: "pending_reviews", Tier: TierSudo, Usage: "/pending_reviews - queue", Handle: noop})

	cmd, ok := r.Lookup("stats")
	require.True(t, ok)
	assert.Equal(t, "progress", cmd.Name)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	assert.NotContains(t, r.Help(TierUser), "/pending_reviews")
	assert.Contains(t, r.Help(TierSudo), "/pending_reviews")

	assert.Panics(t, func() {
		r.Register(Command{Name: "stats", Handle: noop})
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(label string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
				order = append(order, label)
				return next(ctx, ev, args)
			}
		}
	}

	_, err := Chain(noop, mark("outer"), mark("inner"))(context.Background(), models.InboundEvent{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequireSudo(t *testing.T) {
	h := Chain(noop, requireSudo(func(userID string) bool { return userID == "admin" }))

	msg, err := h(context.Background(), models.InboundEvent{UserID: "admin"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text)

	msg, err = h(context.Background(), models.InboundEvent{UserID: "u1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Unauthorized.", msg.Text)
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(func(context.Context, models.InboundEvent, []string) (models.OutboundMessage, error) {
		panic("boom")
	})
	_, err := h(context.Background(), models.InboundEvent{}, nil)
	require.Error(t, err)
}
