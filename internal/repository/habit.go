package repository

import (
	"context"
	"errors"
	"time"

	"habit-streak-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// HabitRepository handles database operations for habits
type HabitRepository struct {
	db DBTX
}

// NewHabitRepository creates a new habit repository
func NewHabitRepository(db DBTX) *HabitRepository {
	return &HabitRepository{db: db}
}

const habitColumns = `id, user_id, name, notification_time, active, created_at, last_notified_at`

func scanHabit(row pgx.Row) (*models.Habit, error) {
	var habit models.Habit
	err := row.Scan(
		&habit.ID, &habit.UserID, &habit.Name, &habit.NotificationTime,
		&habit.Active, &habit.CreatedAt, &habit.LastNotifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &habit, nil
}

// Create creates a new habit
func (r *HabitRepository) Create(ctx context.Context, habit *models.Habit) error {
	query := `
		INSERT INTO habits (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		habit.ID, habit.UserID, habit.Name, habit.NotificationTime,
		habit.Active, habit.CreatedAt, habit.LastNotifiedAt,
	)
	return classify("create habit", err)
}

// Get retrieves a habit by ID
func (r *HabitRepository) Get(ctx context.Context, id string) (*models.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`
	habit, err := scanHabit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("habit")
		}
		return nil, classify("get habit", err)
	}
	return habit, nil
}

// ListByUser retrieves a user's habits, oldest first
func (r *HabitRepository) ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*models.Habit, error) {
	query := `
		SELECT ` + habitColumns + `
		FROM habits
		WHERE user_id = $1 AND (active OR $2)
		ORDER BY created_at, id
	`
	return r.list(ctx, "list habits", query, userID, includeInactive)
}

// ListDueForNotification retrieves active habits whose reminder is due at asOf
func (r *HabitRepository) ListDueForNotification(ctx context.Context, asOf time.Time) ([]*models.Habit, error) {
	// HH:MM text compares in clock order; the per-day check runs in Go so it
	// uses the same location as the caller.
	query := `
		SELECT ` + habitColumns + `
		FROM habits
		WHERE active AND notification_time <= $1
		ORDER BY notification_time, id
	`
	candidates, err := r.list(ctx, "list due habits", query, asOf.Format("15:04"))
	if err != nil {
		return nil, err
	}

	due := candidates[:0]
	for _, habit := range candidates {
		if habit.DueAt(asOf) {
			due = append(due, habit)
		}
	}
	return due, nil
}

func (r *HabitRepository) list(ctx context.Context, op, query string, args ...any) ([]*models.Habit, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	habits := make([]*models.Habit, 0)
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, classify("scan habit", err)
		}
		habits = append(habits, habit)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return habits, nil
}

// Update saves the editable fields of a habit
func (r *HabitRepository) Update(ctx context.Context, habit *models.Habit) error {
	query := `UPDATE habits SET name = $1, notification_time = $2, active = $3 WHERE id = $4`
	result, err := r.db.Exec(ctx, query, habit.Name, habit.NotificationTime, habit.Active, habit.ID)
	if err != nil {
		return classify("update habit", err)
	}
	if result.RowsAffected() == 0 {
		return notFound("habit")
	}
	return nil
}

// MarkNotified records that a reminder fired for the habit
func (r *HabitRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE habits SET last_notified_at = $1 WHERE id = $2`
	result, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return classify("mark habit notified", err)
	}
	if result.RowsAffected() == 0 {
		return notFound("habit")
	}
	return nil
}

// Delete permanently removes a habit. Submissions and streaks are kept.
func (r *HabitRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM habits WHERE id = $1`, id)
	if err != nil {
		return classify("delete habit", err)
	}
	if result.RowsAffected() == 0 {
		return notFound("habit")
	}
	return nil
}
