package services

import (
	"context"
	"fmt"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"
)

// StreakService decides and persists streak counters after review decisions
type StreakService struct {
	store   repository.Store
	locks   *KeyedMutex
	retry   *Retrier
	loc     *time.Location
	timeout time.Duration
}

// NewStreakService creates a new streak service. Calendar days are evaluated in loc.
func NewStreakService(store repository.Store, locks *KeyedMutex, retry *Retrier, loc *time.Location, timeout time.Duration) *StreakService {
	return &StreakService{
		store:   store,
		locks:   locks,
		retry:   retry,
		loc:     loc,
		timeout: timeout,
	}
}

// Advance computes the streak that follows prev after a decision at decidedAt.
//
// A rejection zeroes current and leaves everything else alone. An approval
// bumps current when the previous approval was on the same or the preceding
// calendar day, and restarts it at 1 after a missed day or on the first
// approval ever.
func Advance(prev models.Streak, outcome models.Outcome, decidedAt time.Time, loc *time.Location) models.Streak {
	next := prev
	if outcome != models.OutcomeApproved {
		next.Current = 0
		return next
	}

	switch {
	case prev.LastAdvancedAt == nil:
		next.Current = 1
	case models.DaysBetween(*prev.LastAdvancedAt, decidedAt, loc) <= 1:
		next.Current++
	default:
		next.Current = 1
	}

	next.Longest = max(next.Longest, next.Current)
	next.TotalApproved++
	if prev.LastAdvancedAt == nil || decidedAt.After(*prev.LastAdvancedAt) {
		at := decidedAt
		next.LastAdvancedAt = &at
	}
	return next
}

// OnDecision applies a decision to the (user, habit) streak
func (s *StreakService) OnDecision(ctx context.Context, userID, habitID string, outcome models.Outcome, decidedAt time.Time) (*models.Streak, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("unknown outcome %q: %w", outcome, models.ErrValidation)
	}

	unlock := s.locks.Lock(habitKey(userID, habitID))
	defer unlock()

	storeCtx, cancel := detachedContext(ctx, s.timeout)
	defer cancel()

	var streak *models.Streak
	err := s.retry.Do(storeCtx, "update streak", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			var err error
			streak, err = s.apply(ctx, tx.Streaks(), userID, habitID, outcome, decidedAt)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return streak, nil
}

// apply runs the load-compute-store sequence. The caller holds the key lock.
func (s *StreakService) apply(
	ctx context.Context,
	streaks repository.StreakStore,
	userID, habitID string,
	outcome models.Outcome,
	decidedAt time.Time,
) (*models.Streak, error) {
	prev, err := streaks.Get(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		// records are created by the first approval
		if outcome != models.OutcomeApproved {
			return &models.Streak{UserID: userID, HabitID: habitID}, nil
		}
		prev = &models.Streak{UserID: userID, HabitID: habitID}
	}

	next := Advance(*prev, outcome, decidedAt, s.loc)
	if err := streaks.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Stats returns the streak for a (user, habit) pair, or a zero streak if none exists
func (s *StreakService) Stats(ctx context.Context, userID, habitID string) (*models.Streak, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var streak *models.Streak
	err := s.retry.Do(storeCtx, "get streak", func(ctx context.Context) error {
		var err error
		streak, err = s.store.Streaks().Get(ctx, userID, habitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if streak == nil {
		streak = &models.Streak{UserID: userID, HabitID: habitID}
	}
	return streak, nil
}

// detachedContext keeps ctx values but not its cancellation, so a store
// phase that has started runs to completion or rollback within timeout.
func detachedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
