package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Decision is the committed result of a review
type Decision struct {
	Submission *models.Submission
	Streak     *models.Streak
}

// PendingReview is a pending submission with the name of its habit
type PendingReview struct {
	Submission *models.Submission
	HabitName  string
}

// ReviewService runs the proof submission and admin review workflow
type ReviewService struct {
	store     repository.Store
	streaks   *StreakService
	transport Transport
	photos    PhotoLinker
	events    EventPublisher
	admins    []string
}

// NewReviewService creates a new review service. It shares locks, retry policy
// and store timeout with streaks. photos may be nil.
func NewReviewService(
	store repository.Store,
	streaks *StreakService,
	transport Transport,
	photos PhotoLinker,
	events EventPublisher,
	admins []string,
) *ReviewService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ReviewService{
		store:     store,
		streaks:   streaks,
		transport: transport,
		photos:    photos,
		events:    events,
		admins:    admins,
	}
}

// IsAdmin reports whether userID may review submissions
func (s *ReviewService) IsAdmin(userID string) bool {
	for _, id := range s.admins {
		if id == userID {
			return true
		}
	}
	return false
}

// Submit records a pending proof submission for one of the user's active habits
func (s *ReviewService) Submit(ctx context.Context, userID, habitID, photoRef string, now time.Time) (*models.Submission, error) {
	if strings.TrimSpace(photoRef) == "" {
		submissionCounter.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("photo reference is required: %w", models.ErrValidation)
	}

	sub := &models.Submission{
		ID:          uuid.New().String(),
		HabitID:     habitID,
		UserID:      userID,
		SubmittedAt: now,
		PhotoRef:    photoRef,
		Status:      models.StatusPending,
	}

	var habit *models.Habit
	err := s.withHabitLock(ctx, userID, habitID, "submit proof", func(ctx context.Context, tx repository.Store) error {
		var err error
		habit, err = tx.Habits().Get(ctx, habitID)
		if err != nil {
			return err
		}
		if habit.UserID != userID || !habit.Active {
			return fmt.Errorf("habit not found: %w", models.ErrNotFound)
		}

		pending, err := tx.Submissions().FindPending(ctx, userID, habitID)
		if err != nil {
			return err
		}
		if pending != nil {
			return fmt.Errorf("submission %s is still pending: %w", pending.ID, models.ErrConflict)
		}
		return tx.Submissions().Create(ctx, sub)
	})
	if err != nil {
		submissionCounter.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}
	submissionCounter.WithLabelValues("created").Inc()

	log.Info().
		Str("user_id", userID).
		Str("habit_id", habitID).
		Str("submission_id", sub.ID).
		Msg("Submission created")

	s.publish(ctx, Event{
		Type:         EventSubmitted,
		UserID:       userID,
		HabitID:      habitID,
		SubmissionID: sub.ID,
		OccurredAt:   now,
	})
	s.forwardToAdmins(ctx, sub, habit)
	return sub, nil
}

// Decide applies an admin decision and the resulting streak update as one write
func (s *ReviewService) Decide(
	ctx context.Context,
	submissionID, reviewerID string,
	outcome models.Outcome,
	reason string,
	now time.Time,
) (*Decision, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("unknown outcome %q: %w", outcome, models.ErrValidation)
	}

	sub, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusPending {
		return nil, alreadyDecided(sub)
	}

	var reasonPtr *string
	if reason = strings.TrimSpace(reason); reason != "" && outcome == models.OutcomeRejected {
		reasonPtr = &reason
	}

	var decision Decision
	err = s.withHabitLock(ctx, sub.UserID, sub.HabitID, "decide submission", func(ctx context.Context, tx repository.Store) error {
		current, err := tx.Submissions().Get(ctx, submissionID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusPending {
			return alreadyDecided(current)
		}

		if err := tx.Submissions().UpdateStatus(ctx, submissionID, outcome.Status(), reviewerID, now, reasonPtr); err != nil {
			return err
		}
		streak, err := s.streaks.apply(ctx, tx.Streaks(), current.UserID, current.HabitID, outcome, now)
		if err != nil {
			return err
		}

		current.Status = outcome.Status()
		current.ReviewerID = &reviewerID
		current.ReviewedAt = &now
		current.RejectionReason = reasonPtr
		decision = Decision{Submission: current, Streak: streak}
		return nil
	})
	if err != nil {
		return nil, err
	}
	decisionCounter.WithLabelValues(string(outcome)).Inc()

	log.Info().
		Str("submission_id", submissionID).
		Str("reviewer_id", reviewerID).
		Str("outcome", string(outcome)).
		Int("current_streak", decision.Streak.Current).
		Msg("Submission reviewed")

	s.publish(ctx, Event{
		Type:         EventDecided,
		UserID:       sub.UserID,
		HabitID:      sub.HabitID,
		SubmissionID: submissionID,
		Outcome:      outcome,
		Streak:       decision.Streak,
		OccurredAt:   now,
	})
	s.notifyDecision(ctx, &decision)
	return &decision, nil
}

// Pending returns all pending submissions, oldest first
func (s *ReviewService) Pending(ctx context.Context) ([]PendingReview, error) {
	ctx, cancel := context.WithTimeout(ctx, s.streaks.timeout)
	defer cancel()

	var subs []*models.Submission
	err := s.streaks.retry.Do(ctx, "list pending submissions", func(ctx context.Context) error {
		var err error
		subs, err = s.store.Submissions().Pending(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	reviews := make([]PendingReview, 0, len(subs))
	for _, sub := range subs {
		reviews = append(reviews, PendingReview{Submission: sub, HabitName: s.habitName(ctx, sub.HabitID)})
	}
	return reviews, nil
}

// withHabitLock serializes fn per (user, habit) and runs it in a retried
// transaction that outlives cancellation of ctx.
func (s *ReviewService) withHabitLock(
	ctx context.Context,
	userID, habitID, op string,
	fn func(ctx context.Context, tx repository.Store) error,
) error {
	unlock := s.streaks.locks.Lock(habitKey(userID, habitID))
	defer unlock()

	storeCtx, cancel := detachedContext(ctx, s.streaks.timeout)
	defer cancel()

	return s.streaks.retry.Do(storeCtx, op, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			return fn(ctx, tx)
		})
	})
}

func (s *ReviewService) getSubmission(ctx context.Context, id string) (*models.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, s.streaks.timeout)
	defer cancel()

	var sub *models.Submission
	err := s.streaks.retry.Do(ctx, "get submission", func(ctx context.Context) error {
		var err error
		sub, err = s.store.Submissions().Get(ctx, id)
		return err
	})
	return sub, err
}

func (s *ReviewService) habitName(ctx context.Context, habitID string) string {
	habit, err := s.store.Habits().Get(ctx, habitID)
	if err != nil {
		return "Unknown"
	}
	return habit.Name
}

func (s *ReviewService) forwardToAdmins(ctx context.Context, sub *models.Submission, habit *models.Habit) {
	if len(s.admins) == 0 {
		return
	}

	msg := models.OutboundMessage{
		Text: fmt.Sprintf(
			"New submission for review\n\nUser: %s\nHabit: %s\nSubmission ID: %s",
			sub.UserID, habit.Name, sub.ID,
		),
		Buttons: []models.Button{
			{Label: "Approve", Data: "approve:" + sub.ID},
			{Label: "Reject", Data: "reject:" + sub.ID},
		},
	}
	if s.photos != nil {
		url, err := s.photos.ViewURL(ctx, sub.PhotoRef)
		if err != nil {
			log.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to sign photo URL")
		}
		msg.PhotoURL = url
	}

	for _, adminID := range s.admins {
		if err := s.transport.Send(ctx, adminID, msg); err != nil {
			log.Error().
				Err(err).
				Str("admin_id", adminID).
				Str("submission_id", sub.ID).
				Msg("Failed to forward submission to admin")
		}
	}
}

func (s *ReviewService) notifyDecision(ctx context.Context, decision *Decision) {
	sub := decision.Submission
	name := s.habitName(ctx, sub.HabitID)

	var text string
	if sub.Status == models.StatusApproved {
		text = fmt.Sprintf(
			"Your submission for '%s' has been approved!\n\nCurrent streak: %d day(s)\nLongest streak: %d day(s)\n\nKeep up the great work!",
			name, decision.Streak.Current, decision.Streak.Longest,
		)
	} else {
		text = fmt.Sprintf("Your submission for '%s' has been rejected.", name)
		if sub.RejectionReason != nil {
			text += "\n\nReason: " + *sub.RejectionReason
		}
		text += "\n\nSend a new photo to resubmit."
	}

	if err := s.transport.Send(ctx, sub.UserID, models.OutboundMessage{Text: text}); err != nil {
		log.Error().
			Err(err).
			Str("user_id", sub.UserID).
			Str("submission_id", sub.ID).
			Msg("Failed to notify user of decision")
	}
}

func (s *ReviewService) publish(ctx context.Context, event Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish event")
	}
}

func alreadyDecided(sub *models.Submission) error {
	return fmt.Errorf("submission %s is already %s: %w", sub.ID, sub.Status, models.ErrInvalidState)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	}
	return "failed"
}
