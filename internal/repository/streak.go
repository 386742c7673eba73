package repository

import (
	"context"
	"errors"

	"habit-streak-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// StreakRepository handles database operations for streaks
type StreakRepository struct {
	db        DBTX
	forUpdate bool
}

// NewStreakRepository creates a new streak repository
func NewStreakRepository(db DBTX) *StreakRepository {
	return &StreakRepository{db: db}
}

const streakColumns = `user_id, habit_id, current_streak, longest_streak, total_approved, last_advanced_at`

func scanStreak(row pgx.Row) (*models.Streak, error) {
	var streak models.Streak
	err := row.Scan(
		&streak.UserID, &streak.HabitID, &streak.Current, &streak.Longest,
		&streak.TotalApproved, &streak.LastAdvancedAt,
	)
	if err != nil {
		return nil, err
	}
	return &streak, nil
}

// Get retrieves the streak for a (user, habit) pair
func (r *StreakRepository) Get(ctx context.Context, userID, habitID string) (*models.Streak, error) {
	query := `SELECT ` + streakColumns + ` FROM streaks WHERE user_id = $1 AND habit_id = $2`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}
	streak, err := scanStreak(r.db.QueryRow(ctx, query, userID, habitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get streak", err)
	}
	return streak, nil
}

// Upsert writes every counter of a streak in a single statement
func (r *StreakRepository) Upsert(ctx context.Context, streak *models.Streak) error {
	query := `
		INSERT INTO streaks (` + streakColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, habit_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			total_approved = EXCLUDED.total_approved,
			last_advanced_at = EXCLUDED.last_advanced_at
	`
	_, err := r.db.Exec(ctx, query,
		streak.UserID, streak.HabitID, streak.Current, streak.Longest,
		streak.TotalApproved, streak.LastAdvancedAt,
	)
	return classify("upsert streak", err)
}

// ListByUser retrieves all streaks of a user
func (r *StreakRepository) ListByUser(ctx context.Context, userID string) ([]*models.Streak, error) {
	query := `SELECT ` + streakColumns + ` FROM streaks WHERE user_id = $1 ORDER BY habit_id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify("list streaks", err)
	}
	defer rows.Close()

	streaks := make([]*models.Streak, 0)
	for rows.Next() {
		streak, err := scanStreak(rows)
		if err != nil {
			return nil, classify("scan streak", err)
		}
		streaks = append(streaks, streak)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list streaks", err)
	}
	return streaks, nil
}
