package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/ratelimit"
	"habit-streak-backend/internal/services"

	"github.com/rs/zerolog/log"
)

const slowDownText = "Slow down! Please wait a moment before trying again."

// Bot routes inbound chat events to commands, photo submissions and review callbacks
type Bot struct {
	registry  *Registry
	habits    *services.HabitService
	reviews   *services.ReviewService
	limiter   *ratelimit.Limiter
	transport services.Transport
	photos    *photoCache
	now       func() time.Time

	// keys that were already told to slow down since their last admitted event
	warned sync.Map

	approve HandlerFunc
	reject  HandlerFunc
}

// NewBot creates a bot and registers its commands
func NewBot(
	habits *services.HabitService,
	reviews *services.ReviewService,
	limiter *ratelimit.Limiter,
	transport services.Transport,
) *Bot {
	b := &Bot{
		registry:  NewRegistry(),
		habits:    habits,
		reviews:   reviews,
		limiter:   limiter,
		transport: transport,
		photos:    newPhotoCache(photoCacheTTL),
		now:       time.Now,
	}
	sudo := requireSudo(reviews.IsAdmin)
	b.approve = Chain(b.decideCallback(models.OutcomeApproved), sudo)
	b.reject = Chain(b.decideCallback(models.OutcomeRejected), sudo)
	b.registerCommands(sudo)
	return b
}

// Registry exposes the registered commands
func (b *Bot) Registry() *Registry {
	return b.registry
}

// Handle processes one inbound event and sends its reply to the event's chat.
// Events over the chat's rate limit are dropped after a single warning.
func (b *Bot) Handle(ctx context.Context, ev models.InboundEvent) {
	action := actionFor(ev.Type)
	if action == "" {
		b.reply(ctx, ev.ChatID, models.OutboundMessage{Text: "Unsupported message type."})
		return
	}

	key := ratelimit.Key(ev.ChatID, action)
	if !b.limiter.Allow(key) {
		rateLimitedCounter.WithLabelValues(action).Inc()
		if _, warned := b.warned.LoadOrStore(key, struct{}{}); !warned {
			b.reply(ctx, ev.ChatID, models.OutboundMessage{Text: slowDownText})
		}
		log.Debug().Str("chat_id", ev.ChatID).Str("action", action).Msg("Event rate limited")
		return
	}
	b.warned.Delete(key)

	handler, args := b.route(ev)
	msg, err := Chain(handler, recoverPanics)(ctx, ev, args)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", ev.UserID).
			Str("type", ev.Type).
			Msg("Failed to handle event")
		msg = models.OutboundMessage{Text: userMessage(err)}
	}
	b.reply(ctx, ev.ChatID, msg)
}

func (b *Bot) route(ev models.InboundEvent) (HandlerFunc, []string) {
	switch ev.Type {
	case models.EventPhoto:
		return b.handlePhoto, nil
	case models.EventCallback:
		return b.handleCallback, nil
	}

	name, args, ok := ParseCommand(ev.Payload.Text)
	if !ok {
		return b.textHint("Send /help to see what I can do."), nil
	}
	cmd, found := b.registry.Lookup(name)
	if !found {
		return b.textHint("Unknown command /" + name + ".\n\n" + b.registry.Help(b.tierOf(ev.UserID))), nil
	}
	return cmd.Handle, args
}

func (b *Bot) handleCallback(ctx context.Context, ev models.InboundEvent, _ []string) (models.OutboundMessage, error) {
	action, arg, _ := strings.Cut(ev.Payload.Data, ":")
	if arg == "" {
		return models.OutboundMessage{Text: "Invalid action."}, nil
	}
	args := []string{arg}

	switch action {
	case "submit":
		return b.submitCallback(ctx, ev, args)
	case "approve":
		return b.approve(ctx, ev, args)
	case "reject":
		return b.reject(ctx, ev, args)
	}
	return models.OutboundMessage{Text: "Invalid action."}, nil
}

func (b *Bot) textHint(text string) HandlerFunc {
	return func(context.Context, models.InboundEvent, []string) (models.OutboundMessage, error) {
		return models.OutboundMessage{Text: text}, nil
	}
}

func (b *Bot) tierOf(userID string) Tier {
	if b.reviews.IsAdmin(userID) {
		return TierSudo
	}
	return TierUser
}

func (b *Bot) reply(ctx context.Context, chatID string, msg models.OutboundMessage) {
	if msg.Text == "" {
		return
	}
	if err := b.transport.Send(ctx, chatID, msg); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to send reply")
	}
}

// eventTime is when the transport received the event
func (b *Bot) eventTime(ev models.InboundEvent) time.Time {
	if ev.Timestamp.IsZero() {
		return b.now()
	}
	return ev.Timestamp
}

func actionFor(eventType string) string {
	switch eventType {
	case models.EventCommand:
		return ratelimit.ActionCommand
	case models.EventPhoto:
		return ratelimit.ActionPhoto
	case models.EventCallback:
		return ratelimit.ActionCallback
	}
	return ""
}

// userMessage maps an error onto the reply shown in chat
func userMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrConflict):
		return "You already have a submission waiting for review for this habit."
	case errors.Is(err, models.ErrNotFound):
		return "Not found. Use /my_habits to see your habits."
	case errors.Is(err, models.ErrInvalidState):
		return "This submission has already been reviewed."
	case errors.Is(err, models.ErrValidation):
		return "Invalid input. Use /help to see usage."
	}
	return "Something went wrong. Please try again later."
}
