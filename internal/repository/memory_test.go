package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"habit-streak-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(d, hour, minute int) time.Time {
	return time.Date(2024, time.March, d, hour, minute, 0, 0, time.UTC)
}

func pending(id, userID, habitID string, submittedAt time.Time) *models.Submission {
	return &models.Submission{
		ID:          id,
		UserID:      userID,
		HabitID:     habitID,
		SubmittedAt: submittedAt,
		PhotoRef:    "proofs/" + id,
		Status:      models.StatusPending,
	}
}

func TestMemoryHabits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	habits := store.Habits()

	require.NoError(t, habits.Create(ctx, &models.Habit{ID: "h1", UserID: "u1", Name: "Exercise", NotificationTime: "09:00", Active: true, CreatedAt: at(1, 0, 0)}))
	require.NoError(t, habits.Create(ctx, &models.Habit{ID: "h2", UserID: "u1", Name: "Reading", NotificationTime: "21:00", Active: true, CreatedAt: at(1, 0, 1)}))
	require.NoError(t, habits.Create(ctx, &models.Habit{ID: "h3", UserID: "u2", Name: "Walk", NotificationTime: "08:00", Active: false, CreatedAt: at(1, 0, 2)}))
	require.ErrorIs(t, habits.Create(ctx, &models.Habit{ID: "h1"}), models.ErrConflict)

	list, err := habits.ListByUser(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].ID)

	due, err := habits.ListDueForNotification(ctx, at(2, 9, 30))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "h1", due[0].ID)

	require.NoError(t, habits.MarkNotified(ctx, "h1", at(2, 9, 30)))
	due, err = habits.ListDueForNotification(ctx, at(2, 9, 31))
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, habits.Delete(ctx, "h3"))
	_, err = habits.Get(ctx, "h3")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.ErrorIs(t, habits.MarkNotified(ctx, "h3", at(2, 9, 0)), models.ErrNotFound)
}

func TestMemorySubmissions(t *testing.T) {
	ctx := context.Background()
	subs := NewMemoryStore().Submissions()

	require.NoError(t, subs.Create(ctx, pending("s1", "u1", "h1", at(1, 9, 0))))
	require.ErrorIs(t, subs.Create(ctx, pending("s2", "u1", "h1", at(1, 9, 1))), models.ErrConflict)
	require.NoError(t, subs.Create(ctx, pending("s3", "u1", "h2", at(1, 8, 0))))

	found, err := subs.FindPending(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, "s1", found.ID)

	none, err := subs.FindPending(ctx, "u1", "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := subs.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "s3", all[0].ID)

	reason := "blurry"
	require.NoError(t, subs.UpdateStatus(ctx, "s1", models.StatusRejected, "admin", at(1, 10, 0), &reason))
	require.ErrorIs(t, subs.UpdateStatus(ctx, "s1", models.StatusApproved, "admin", at(1, 11, 0), nil), models.ErrInvalidState)

	stored, err := subs.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.Equal(t, "blurry", *stored.RejectionReason)

	active, err := subs.HasActiveSince(ctx, "u1", "h1", at(1, 0, 0))
	require.NoError(t, err)
	assert.False(t, active, "rejected submissions do not count")

	active, err = subs.HasActiveSince(ctx, "u1", "h2", at(1, 0, 0))
	require.NoError(t, err)
	assert.True(t, active)

	active, err = subs.HasActiveSince(ctx, "u1", "h2", at(2, 0, 0))
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryStreaks(t *testing.T) {
	ctx := context.Background()
	streaks := NewMemoryStore().Streaks()

	missing, err := streaks.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, streaks.Upsert(ctx, &models.Streak{UserID: "u1", HabitID: "h2", Current: 1, Longest: 1}))
	require.NoError(t, streaks.Upsert(ctx, &models.Streak{UserID: "u1", HabitID: "h1", Current: 2, Longest: 2}))
	require.NoError(t, streaks.Upsert(ctx, &models.Streak{UserID: "u1", HabitID: "h1", Current: 3, Longest: 3}))

	got, err := streaks.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Current)

	list, err := streaks.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].HabitID)
}

func TestMemoryWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Submissions().Create(ctx, pending("s1", "u1", "h1", at(1, 9, 0))))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx Store) error {
		require.NoError(t, tx.Submissions().UpdateStatus(ctx, "s1", models.StatusApproved, "admin", at(1, 10, 0), nil))
		require.NoError(t, tx.Streaks().Upsert(ctx, &models.Streak{UserID: "u1", HabitID: "h1", Current: 1, Longest: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	sub, err := store.Submissions().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sub.Status)

	streak, err := store.Streaks().Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, streak)

	err = store.WithinTx(ctx, func(tx Store) error {
		return tx.Streaks().Upsert(ctx, &models.Streak{UserID: "u1", HabitID: "h1", Current: 1, Longest: 1})
	})
	require.NoError(t, err)
	streak, err = store.Streaks().Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.Current)
}

func TestMemoryExpiredContextIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := NewMemoryStore().Habits().Get(ctx, "h1")
	require.ErrorIs(t, err, models.ErrTransientStore)
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryStore().Users()

	require.NoError(t, users.Create(ctx, &models.User{ID: "u1", Code: "ABC123"}))
	exists, err := users.CodeExists(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)

	token := "device"
	require.NoError(t, users.UpdatePushToken(ctx, "u1", &token))
	user, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "device", *user.PushToken)

	require.ErrorIs(t, users.UpdatePushToken(ctx, "nobody", &token), models.ErrNotFound)
}
