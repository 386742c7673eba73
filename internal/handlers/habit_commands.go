package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"habit-streak-backend/internal/models"
)

var clockPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

const noHabitsText = "You have no active habits.\n\nUse /add_habit <name> to create your first habit!"

func (b *Bot) registerCommands(sudo Middleware) {
	b.registry.Register(Command{
		Name:    "start",
		Aliases: []string{"help"},
		Usage:   "/help - show this message",
		Handle:  b.help,
	})
	b.registry.Register(Command{
		Name:   "add_habit",
		Usage:  "/add_habit <name> [HH:MM] - create a habit with a daily reminder",
		Handle: b.addHabit,
	})
	b.registry.Register(Command{
		Name:    "my_habits",
		Aliases: []string{"habits"},
		Usage:   "/my_habits - list your active habits",
		Handle:  b.myHabits,
	})
	b.registry.Register(Command{
		Name:    "progress",
		Aliases: []string{"stats", "streak"},
		Usage:   "/progress - show your streaks",
		Handle:  b.progress,
	})
	b.registry.Register(Command{
		Name:   "edit_habit",
		Usage:  "/edit_habit <id> <HH:MM> - change a reminder time",
		Handle: b.editHabit,
	})
	b.registry.Register(Command{
		Name:   "delete_habit",
		Usage:  "/delete_habit <id> - stop tracking a habit",
		Handle: b.deleteHabit,
	})
	b.registry.Register(Command{
		Name:    "pending_reviews",
		Aliases: []string{"pending"},
		Tier:    TierSudo,
		Usage:   "/pending_reviews - list submissions awaiting review",
		Handle:  Chain(b.pendingReviews, sudo),
	})
	b.registry.Register(Command{
		Name:   "reject",
		Tier:   TierSudo,
		Usage:  "/reject <submission id> [reason] - reject a submission with a reason",
		Handle: Chain(b.rejectCommand, sudo),
	})
}

func (b *Bot) help(_ context.Context, ev models.InboundEvent, _ []string) (models.OutboundMessage, error) {
	return models.OutboundMessage{Text: b.registry.Help(b.tierOf(ev.UserID))}, nil
}

func (b *Bot) addHabit(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
	const usage = "Usage: /add_habit <habit name> [notification time]\n\n" +
		"Examples:\n  /add_habit Morning Exercise\n  /add_habit Reading 20:00"
	if len(args) == 0 {
		return models.OutboundMessage{Text: usage}, nil
	}

	clock := ""
	if last := args[len(args)-1]; clockPattern.MatchString(last) {
		clock = last
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		return models.OutboundMessage{Text: "Please provide a habit name.\n" + usage}, nil
	}

	habit, err := b.habits.Create(ctx, ev.UserID, strings.Join(args, " "), clock)
	if errors.Is(err, models.ErrValidation) {
		return models.OutboundMessage{Text: "Invalid time, expected HH:MM between 00:00 and 23:59."}, nil
	}
	if err != nil {
		return models.OutboundMessage{}, err
	}

	return models.OutboundMessage{Text: fmt.Sprintf(
		"Habit '%s' created!\n\nDaily reminder at: %s\n\nUse /my_habits to see all your habits.",
		habit.Name, habit.NotificationTime,
	)}, nil
}

func (b *Bot) myHabits(ctx context.Context, ev models.InboundEvent, _ []string) (models.OutboundMessage, error) {
	habits, err := b.habits.List(ctx, ev.UserID)
	if err != nil {
		return models.OutboundMessage{}, err
	}
	if len(habits) == 0 {
		return models.OutboundMessage{Text: noHabitsText}, nil
	}

	var sb strings.Builder
	sb.WriteString("Your active habits:\n")
	for i, habit := range habits {
		fmt.Fprintf(&sb, "\n%d. %s\n   Reminder: %s\n   ID: %s", i+1, habit.Name, habit.NotificationTime, habit.ID)
	}
	sb.WriteString("\n\nUse /progress to see your streaks.")
	return models.OutboundMessage{Text: sb.String()}, nil
}

func (b *Bot) progress(ctx context.Context, ev models.InboundEvent, _ []string) (models.OutboundMessage, error) {
	progress, err := b.habits.Progress(ctx, ev.UserID)
	if err != nil {
		return models.OutboundMessage{}, err
	}
	if len(progress) == 0 {
		return models.OutboundMessage{Text: noHabitsText}, nil
	}

	var sb strings.Builder
	sb.WriteString("Your progress:\n")
	for _, p := range progress {
		fmt.Fprintf(&sb, "\n%s:\n  Current streak: %d day(s)\n  Longest streak: %d day(s)\n  Total approved: %d\n",
			p.Habit.Name, p.Streak.Current, p.Streak.Longest, p.Streak.TotalApproved)
	}
	return models.OutboundMessage{Text: sb.String()}, nil
}

func (b *Bot) editHabit(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
	if len(args) != 2 {
		return models.OutboundMessage{Text: "Usage: /edit_habit <habit_id> <HH:MM>"}, nil
	}

	habit, err := b.habits.UpdateTime(ctx, ev.UserID, args[0], args[1])
	switch {
	case errors.Is(err, models.ErrValidation):
		return models.OutboundMessage{Text: "Invalid time, expected HH:MM between 00:00 and 23:59."}, nil
	case errors.Is(err, models.ErrNotFound):
		return models.OutboundMessage{Text: "Habit not found."}, nil
	case err != nil:
		return models.OutboundMessage{}, err
	}
	return models.OutboundMessage{Text: fmt.Sprintf("Reminder for '%s' moved to %s.", habit.Name, habit.NotificationTime)}, nil
}

func (b *Bot) deleteHabit(ctx context.Context, ev models.InboundEvent, args []string) (models.OutboundMessage, error) {
	if len(args) != 1 {
		return models.OutboundMessage{Text: "Usage: /delete_habit <habit_id>\n\nUse /my_habits to see your habit IDs."}, nil
	}

	habit, err := b.habits.Deactivate(ctx, ev.UserID, args[0])
	if errors.Is(err, models.ErrNotFound) {
		return models.OutboundMessage{Text: "Habit not found."}, nil
	}
	if err != nil {
		return models.OutboundMessage{}, err
	}
	return models.OutboundMessage{Text: fmt.Sprintf(
		"Habit '%s' has been deleted.\n\nYour streak history is preserved.", habit.Name,
	)}, nil
}
