package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"habit-streak-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on top of a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func (s *PostgresStore) Habits() HabitStore           { return NewHabitRepository(s.db) }
func (s *PostgresStore) Submissions() SubmissionStore { return NewSubmissionRepository(s.db) }
func (s *PostgresStore) Users() UserStore             { return NewUserRepository(s.db) }

// Streaks locks the rows it reads when used inside WithinTx
func (s *PostgresStore) Streaks() StreakStore {
	repo := NewStreakRepository(s.db)
	repo.forUpdate = s.inTx
	return repo
}

// WithinTx runs fn inside a database transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin transaction", err)
	}

	if err := fn(&PostgresStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, classify("rollback transaction", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// classify wraps a driver error, mapping it onto the models error taxonomy
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("failed to %s: %w", op, models.ErrConflict)
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return fmt.Errorf("failed to %s: %w: %w", op, models.ErrTransientStore, err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	if isTransient(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, models.ErrTransientStore, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func notFound(entity string) error {
	return fmt.Errorf("%s not found: %w", entity, models.ErrNotFound)
}
