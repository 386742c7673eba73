package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE,
	token      TEXT NOT NULL,
	push_token TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS habits (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	name              TEXT NOT NULL,
	notification_time TEXT NOT NULL,
	active            BOOLEAN NOT NULL DEFAULT TRUE,
	created_at        TIMESTAMPTZ NOT NULL,
	last_notified_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS habits_user_idx ON habits (user_id);
CREATE INDEX IF NOT EXISTS habits_due_idx ON habits (notification_time) WHERE active;

CREATE TABLE IF NOT EXISTS submissions (
	id               TEXT PRIMARY KEY,
	habit_id         TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	submitted_at     TIMESTAMPTZ NOT NULL,
	photo_ref        TEXT NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
	reviewed_at      TIMESTAMPTZ,
	reviewer_id      TEXT,
	rejection_reason TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS submissions_one_pending_idx
	ON submissions (user_id, habit_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS submissions_user_habit_idx
	ON submissions (user_id, habit_id, submitted_at);

CREATE TABLE IF NOT EXISTS streaks (
	user_id          TEXT NOT NULL,
	habit_id         TEXT NOT NULL,
	current_streak   INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
	longest_streak   INTEGER NOT NULL DEFAULT 0 CHECK (longest_streak >= current_streak),
	total_approved   INTEGER NOT NULL DEFAULT 0,
	last_advanced_at TIMESTAMPTZ,
	PRIMARY KEY (user_id, habit_id)
);
`

// Migrate creates the tables used by the Postgres store
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
