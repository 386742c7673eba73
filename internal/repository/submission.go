package repository

import (
	"context"
	"errors"
	"time"

	"habit-streak-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// SubmissionRepository handles database operations for submissions
type SubmissionRepository struct {
	db DBTX
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, habit_id, user_id, submitted_at, photo_ref, status, reviewed_at, reviewer_id, rejection_reason`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var sub models.Submission
	err := row.Scan(
		&sub.ID, &sub.HabitID, &sub.UserID, &sub.SubmittedAt, &sub.PhotoRef,
		&sub.Status, &sub.ReviewedAt, &sub.ReviewerID, &sub.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create creates a new submission. A second pending submission for the same
// (user, habit) violates submissions_one_pending_idx and maps to ErrConflict.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.HabitID, sub.UserID, sub.SubmittedAt, sub.PhotoRef,
		sub.Status, sub.ReviewedAt, sub.ReviewerID, sub.RejectionReason,
	)
	return classify("create submission", err)
}

// Get retrieves a submission by ID
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("submission")
		}
		return nil, classify("get submission", err)
	}
	return sub, nil
}

// FindPending retrieves the open submission for a habit, if any
func (r *SubmissionRepository) FindPending(ctx context.Context, userID, habitID string) (*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND habit_id = $2 AND status = 'pending'
		LIMIT 1
	`
	sub, err := scanSubmission(r.db.QueryRow(ctx, query, userID, habitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("find pending submission", err)
	}
	return sub, nil
}

// UpdateStatus applies a review decision if the submission is still pending
func (r *SubmissionRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status models.SubmissionStatus,
	reviewerID string,
	reviewedAt time.Time,
	reason *string,
) error {
	query := `
		UPDATE submissions
		SET status = $1, reviewer_id = $2, reviewed_at = $3, rejection_reason = $4
		WHERE id = $5 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, status, reviewerID, reviewedAt, reason, id)
	if err != nil {
		return classify("update submission status", err)
	}
	if result.RowsAffected() == 0 {
		return errors.Join(models.ErrInvalidState, errors.New("submission is not pending"))
	}
	return nil
}

// Pending retrieves all pending submissions, oldest first
func (r *SubmissionRepository) Pending(ctx context.Context) ([]*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE status = 'pending'
		ORDER BY submitted_at, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, classify("list pending submissions", err)
	}
	defer rows.Close()

	subs := make([]*models.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, classify("scan submission", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list pending submissions", err)
	}
	return subs, nil
}

// HasActiveSince checks for a pending or approved submission at or after since
func (r *SubmissionRepository) HasActiveSince(ctx context.Context, userID, habitID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM submissions
			WHERE user_id = $1 AND habit_id = $2
			  AND status IN ('pending', 'approved')
			  AND submitted_at >= $3
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, habitID, since).Scan(&exists); err != nil {
		return false, classify("check submissions", err)
	}
	return exists, nil
}
