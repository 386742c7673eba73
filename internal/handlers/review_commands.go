package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"habit-streak-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const photoCacheTTL = 15 * time.Minute

type cachedPhoto struct {
	ref      string
	cachedAt time.Time
}

// photoCache holds a user's last photo while they pick which habit it proves
type photoCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	photos map[string]cachedPhoto
}

func newPhotoCache(ttl time.Duration) *photoCache {
	return &photoCache{ttl: ttl, photos: make(map[string]cachedPhoto)}
}

func (c *photoCache) put(userID, ref string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, p := range c.photos {
		if now.Sub(p.cachedAt) > c.ttl {
			delete(c.photos, id)
		}
	}
	c.photos[userID] = cachedPhoto{ref: ref, cachedAt: now}
}

func (c *photoCache) take(userID string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.photos[userID]
	delete(c.photos, userID)
	if !ok || now.Sub(p.cachedAt) > c.ttl {
		return "", false
	}
	return p.ref, true
}

func (b *Bot) handlePhoto(ctx context.Context, ev models.InboundEvent, _ []string) (models.OutboundMessage, error) {
	ref := ev.Payload.PhotoRef
	if strings.TrimSpace(ref) == "" {
		return models.OutboundMessage{Text: "The photo is missing. Upload it and send it again."}, nil
	}
	if ev.Payload.HabitID != "" {
		return b.submit(ctx, ev, ev.Payload.HabitID, ref)
	}

	habits, err := b.habits.List(ctx, ev.UserID)
	if err != nil {
		return models.OutboundMessage{}, err
	}
	switch len(habits) {
	case 0:
		return models.OutboundMessage{Text: noHabitsText}, nil
	case 1:
		return b.submit(ctx, ev, habits[0].ID, ref)
	}

	b.photos.put(ev.UserID, ref, b.eventTime(ev))
	msg := models.OutboundMessage{Text: "Which habit is this submission for?\n\nSelect from the options below:"}
	for _, habit := range habits {
		msg.Buttons = append(msg.Buttons, models.Button{Label: habit.Name, Data: "submit:" + habit.ID})
	}
	return msg, nil
}

func (b *Bot) submitCallback(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
	ref, ok := b.photos.take(ev.UserID, b.eventTime(ev))
	if !ok {
		return models.OutboundMessage{Text: "Session expired. Please send photo again."}, nil
	}
	return b.submit(ctx, ev, args[0], ref)
}

func (b *Bot) submit(ctx context.Context, ev models.InboundEvent, habitID, ref string) (models.OutboundMessage, error) {
	sub, err := b.reviews.Submit(ctx, ev.UserID, habitID, ref, b.eventTime(ev))
	switch {
	case errors.Is(err, models.ErrConflict):
		return models.OutboundMessage{Text: "Your previous proof for this habit is still waiting for review.\n\nYou'll be notified once it's reviewed."}, nil
	case errors.Is(err, models.ErrNotFound):
		return models.OutboundMessage{Text: "Habit not found."}, nil
	case err != nil:
		return models.OutboundMessage{}, err
	}

	log.Info().Str("user_id", ev.UserID).Str("submission_id", sub.ID).Msg("Proof submitted")
	return models.OutboundMessage{Text: "Your proof has been submitted!\n\nStatus: Pending review\n\nYou'll be notified once it's reviewed."}, nil
}

func (b *Bot) decideCallback(outcome models.Outcome) HandlerFunc {
	return func(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
		return b.decide(ctx, ev, args[0], outcome, "")
	}
}

func (b *Bot) rejectCommand(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
	if len(args) == 0 {
		return models.OutboundMessage{Text: "Usage: /reject <submission_id> [reason]"}, nil
	}
	return b.decide(ctx, ev, args[0], models.OutcomeRejected, strings.Join(args[1:], " "))
}

func (b *Bot) decide(ctx context.Context, ev models.InboundEvent, submissionID string, outcome models.Outcome, reason string) (models.OutboundMessage, error) {
	decision, err := b.reviews.Decide(ctx, submissionID, ev.UserID, outcome, reason, b.now())
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.OutboundMessage{Text: "Submission not found."}, nil
	case errors.Is(err, models.ErrInvalidState):
		return models.OutboundMessage{Text: "This submission has already been reviewed."}, nil
	case err != nil:
		return models.OutboundMessage{}, err
	}

	if outcome == models.OutcomeApproved {
		return models.OutboundMessage{Text: fmt.Sprintf(
			"Submission approved! Current streak: %d, longest: %d.",
			decision.Streak.Current, decision.Streak.Longest,
		)}, nil
	}
	return models.OutboundMessage{Text: "Submission rejected."}, nil
}

func (b *Bot) pendingReviews(ctx context.Context, _ models.InboundEvent, _ []string) (models.OutboundMessage, error) {
	pending, err := b.reviews.Pending(ctx)
	if err != nil {
		return models.OutboundMessage{}, err
	}
	if len(pending) == 0 {
		return models.OutboundMessage{Text: "No pending submissions to review."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pending submissions: %d\n", len(pending))
	for i, p := range pending {
		fmt.Fprintf(&sb, "\n%d. User %s - %s\n   Submitted: %s\n   ID: %s",
			i+1, p.Submission.UserID, p.HabitName,
			p.Submission.SubmittedAt.Format("2006-01-02 15:04"), p.Submission.ID)
	}
	return models.OutboundMessage{Text: sb.String()}, nil
}
