package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"

	"github.com/google/uuid"
)

// DefaultNotificationTime is used when a habit is created without a reminder time
const DefaultNotificationTime = "09:00"

// HabitProgress pairs a habit with its streak counters
type HabitProgress struct {
	Habit  *models.Habit  `json:"habit"`
	Streak *models.Streak `json:"streak"`
}

// HabitService handles habit management for their owners
type HabitService struct {
	store   repository.Store
	retry   *Retrier
	timeout time.Duration
	now     func() time.Time
}

// NewHabitService creates a new habit service
func NewHabitService(store repository.Store, retry *Retrier, timeout time.Duration) *HabitService {
	return &HabitService{
		store:   store,
		retry:   retry,
		timeout: timeout,
		now:     time.Now,
	}
}

// Create creates an active habit. An empty clock means DefaultNotificationTime.
func (s *HabitService) Create(ctx context.Context, userID, name, clock string) (*models.Habit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("habit name is required: %w", models.ErrValidation)
	}
	if clock == "" {
		clock = DefaultNotificationTime
	}
	if _, err := models.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("%w: %w", err, models.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	habit := &models.Habit{
		ID:               uuid.New().String(),
		UserID:           userID,
		Name:             name,
		NotificationTime: clock,
		Active:           true,
		CreatedAt:        s.now(),
	}
	err := s.retry.Do(ctx, "create habit", func(ctx context.Context) error {
		return s.store.Habits().Create(ctx, habit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}
	return habit, nil
}

// List returns the user's active habits, oldest first
func (s *HabitService) List(ctx context.Context, userID string) ([]*models.Habit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var habits []*models.Habit
	err := s.retry.Do(ctx, "list habits", func(ctx context.Context) error {
		var err error
		habits, err = s.store.Habits().ListByUser(ctx, userID, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	return habits, nil
}

// Deactivate soft deletes a habit. Its submissions and streak are kept.
func (s *HabitService) Deactivate(ctx context.Context, userID, habitID string) (*models.Habit, error) {
	return s.update(ctx, userID, habitID, func(h *models.Habit) {
		h.Active = false
	})
}

// UpdateTime changes the daily reminder time of a habit
func (s *HabitService) UpdateTime(ctx context.Context, userID, habitID, clock string) (*models.Habit, error) {
	if _, err := models.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("%w: %w", err, models.ErrValidation)
	}
	return s.update(ctx, userID, habitID, func(h *models.Habit) {
		h.NotificationTime = clock
	})
}

// Delete removes a habit record. Dependent submissions and streaks are orphaned.
func (s *HabitService) Delete(ctx context.Context, userID, habitID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.retry.Do(ctx, "delete habit", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			if _, err := s.owned(ctx, tx.Habits(), userID, habitID, true); err != nil {
				return err
			}
			return tx.Habits().Delete(ctx, habitID)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	return nil
}

// Progress returns streak counters for every active habit of the user
func (s *HabitService) Progress(ctx context.Context, userID string) ([]HabitProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		habits  []*models.Habit
		streaks []*models.Streak
	)
	err := s.retry.Do(ctx, "load progress", func(ctx context.Context) error {
		var err error
		if habits, err = s.store.Habits().ListByUser(ctx, userID, false); err != nil {
			return fmt.Errorf("failed to list habits: %w", err)
		}
		if streaks, err = s.store.Streaks().ListByUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to list streaks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byHabit := make(map[string]*models.Streak, len(streaks))
	for _, streak := range streaks {
		byHabit[streak.HabitID] = streak
	}

	progress := make([]HabitProgress, 0, len(habits))
	for _, habit := range habits {
		streak, ok := byHabit[habit.ID]
		if !ok {
			streak = &models.Streak{UserID: userID, HabitID: habit.ID}
		}
		progress = append(progress, HabitProgress{Habit: habit, Streak: streak})
	}
	return progress, nil
}

func (s *HabitService) update(ctx context.Context, userID, habitID string, change func(*models.Habit)) (*models.Habit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var habit *models.Habit
	err := s.retry.Do(ctx, "update habit", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			var err error
			habit, err = s.owned(ctx, tx.Habits(), userID, habitID, false)
			if err != nil {
				return err
			}
			change(habit)
			return tx.Habits().Update(ctx, habit)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update habit: %w", err)
	}
	return habit, nil
}

// owned loads a habit and hides it unless it belongs to userID
func (s *HabitService) owned(ctx context.Context, habits repository.HabitStore, userID, habitID string, includeInactive bool) (*models.Habit, error) {
	habit, err := habits.Get(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID || (!habit.Active && !includeInactive) {
		return nil, fmt.Errorf("habit not found: %w", models.ErrNotFound)
	}
	return habit, nil
}
