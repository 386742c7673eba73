package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ErrTickInProgress is returned by Tick while another tick is still running
var ErrTickInProgress = errors.New("scheduler tick already running")

// TickResult counts what one scheduler pass did
type TickResult struct {
	Due     int
	Sent    int
	Skipped int
	Failed  int
}

// Scheduler sends daily habit reminders once their notification time has passed
type Scheduler struct {
	store     repository.Store
	transport Transport
	events    EventPublisher
	retry     *Retrier
	interval  time.Duration
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time

	running atomic.Bool
	done    chan struct{}
}

// NewScheduler creates a scheduler. Reminder times are read in loc.
func NewScheduler(
	store repository.Store,
	transport Transport,
	events EventPublisher,
	retry *Retrier,
	interval, timeout time.Duration,
	loc *time.Location,
) *Scheduler {
	if events == nil {
		events = NopPublisher{}
	}
	return &Scheduler{
		store:     store,
		transport: transport,
		events:    events,
		retry:     retry,
		interval:  interval,
		timeout:   timeout,
		loc:       loc,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs a tick immediately and then on every interval until ctx is done.
// It should be called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	log.Info().Dur("interval", s.interval).Str("timezone", s.loc.String()).Msg("Scheduler started")
	for {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Scheduler tick failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns
func (s *Scheduler) Wait() {
	<-s.done
}

// Tick runs one pass over the due habits. Habits are processed independently;
// a failure for one is logged and counted.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		skippedTicks.Inc()
		return TickResult{}, ErrTickInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	now := s.now().In(s.loc)
	habits, err := s.dueHabits(ctx, now)
	if err != nil {
		return TickResult{}, err
	}

	result := TickResult{Due: len(habits)}
	for _, habit := range habits {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		sent, err := s.remind(ctx, habit, now)
		switch {
		case err != nil:
			result.Failed++
			reminderCounter.WithLabelValues("failed").Inc()
			log.Error().
				Err(err).
				Str("habit_id", habit.ID).
				Str("user_id", habit.UserID).
				Msg("Failed to process reminder")
		case sent:
			result.Sent++
			reminderCounter.WithLabelValues("sent").Inc()
		default:
			result.Skipped++
			reminderCounter.WithLabelValues("skipped").Inc()
		}
	}

	if result.Due > 0 {
		log.Info().
			Int("due", result.Due).
			Int("sent", result.Sent).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("Scheduler tick processed")
	}
	return result, nil
}

func (s *Scheduler) dueHabits(ctx context.Context, now time.Time) ([]*models.Habit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var habits []*models.Habit
	err := s.retry.Do(ctx, "list due habits", func(ctx context.Context) error {
		var err error
		habits, err = s.store.Habits().ListDueForNotification(ctx, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list due habits: %w", err)
	}
	return habits, nil
}

// remind sends one reminder and marks the habit notified. A habit that already
// has a pending or approved submission today is marked without sending.
// The habit is marked only after a successful send, so a failed send is
// retried on the next tick.
func (s *Scheduler) remind(ctx context.Context, habit *models.Habit, now time.Time) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		submitted bool
		streak    *models.Streak
	)
	err := s.retry.Do(storeCtx, "load reminder state", func(ctx context.Context) error {
		var err error
		submitted, err = s.store.Submissions().HasActiveSince(ctx, habit.UserID, habit.ID, models.StartOfDay(now))
		if err != nil || submitted {
			return err
		}
		streak, err = s.store.Streaks().Get(ctx, habit.UserID, habit.ID)
		return err
	})
	if err != nil {
		return false, err
	}

	if !submitted {
		if err := s.transport.Send(ctx, habit.UserID, BuildReminder(habit, streak, now, s.loc)); err != nil {
			return false, fmt.Errorf("failed to send reminder: %w", err)
		}
	}

	err = s.retry.Do(storeCtx, "mark habit notified", func(ctx context.Context) error {
		return s.store.Habits().MarkNotified(ctx, habit.ID, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark habit notified: %w", err)
	}

	if submitted {
		return false, nil
	}
	if err := s.events.Publish(ctx, Event{
		Type:       EventReminded,
		UserID:     habit.UserID,
		HabitID:    habit.ID,
		Streak:     streak,
		OccurredAt: now,
	}); err != nil {
		log.Warn().Err(err).Str("habit_id", habit.ID).Msg("Failed to publish reminder event")
	}
	return true, nil
}

// BuildReminder renders the reminder for a habit. streak may be nil.
func BuildReminder(habit *models.Habit, streak *models.Streak, now time.Time, loc *time.Location) models.OutboundMessage {
	current := 0
	atRisk := false
	if streak != nil {
		current = streak.Current
		atRisk = current > 0 && streak.LastAdvancedAt != nil &&
			models.DaysBetween(*streak.LastAdvancedAt, now, loc) == 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Time for your daily habit: %s!\n\n", habit.Name)
	if current > 0 {
		fmt.Fprintf(&b, "Current streak: %d day(s)\n", current)
		if atRisk {
			b.WriteString("Don't lose your streak! Submit your proof today.\n")
		}
	} else {
		b.WriteString("Start building your streak today!\n")
	}
	b.WriteString("\nReply with a photo to submit your proof.")

	return models.OutboundMessage{Text: b.String()}
}
