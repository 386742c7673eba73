package repository

import (
	"context"
	"time"

	"habit-streak-backend/internal/models"
)

// HabitStore persists habits
type HabitStore interface {
	Create(ctx context.Context, habit *models.Habit) error
	Get(ctx context.Context, id string) (*models.Habit, error)
	ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*models.Habit, error)
	// ListDueForNotification returns active habits whose reminder should fire at asOf.
	// asOf must be expressed in the schedule's location.
	ListDueForNotification(ctx context.Context, asOf time.Time) ([]*models.Habit, error)
	Update(ctx context.Context, habit *models.Habit) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// SubmissionStore persists submissions. Submissions are never deleted.
type SubmissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	Get(ctx context.Context, id string) (*models.Submission, error)
	// FindPending returns nil without error when no pending submission exists.
	FindPending(ctx context.Context, userID, habitID string) (*models.Submission, error)
	// UpdateStatus moves a pending submission to a terminal status. It returns
	// models.ErrInvalidState when the submission is no longer pending.
	UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, reviewerID string, reviewedAt time.Time, reason *string) error
	Pending(ctx context.Context) ([]*models.Submission, error)
	// HasActiveSince reports whether a pending or approved submission exists at or after since.
	HasActiveSince(ctx context.Context, userID, habitID string, since time.Time) (bool, error)
}

// StreakStore persists per-(user, habit) streak counters
type StreakStore interface {
	// Get returns nil without error when no streak exists yet. Inside a
	// transaction the row stays locked until commit.
	Get(ctx context.Context, userID, habitID string) (*models.Streak, error)
	Upsert(ctx context.Context, streak *models.Streak) error
	ListByUser(ctx context.Context, userID string) ([]*models.Streak, error)
}

// UserStore persists users
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// Store groups the record stores and applies multi-record updates as one unit
type Store interface {
	Habits() HabitStore
	Submissions() SubmissionStore
	Streaks() StreakStore
	Users() UserStore
	// WithinTx runs fn against a transactional view of the store. Every write
	// made through tx is applied if fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
