package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceConsecutiveApprovals(t *testing.T) {
	var streak models.Streak
	for i := 1; i <= 7; i++ {
		prevLongest := streak.Longest
		streak = Advance(streak, models.OutcomeApproved, day(i, 10, 0), time.UTC)

		require.Equal(t, i, streak.Current)
		require.GreaterOrEqual(t, streak.Longest, prevLongest)
		require.GreaterOrEqual(t, streak.Longest, streak.Current)
	}
	assert.Equal(t, 7, streak.TotalApproved)
	assert.Equal(t, day(7, 10, 0), *streak.LastAdvancedAt)
}

func TestAdvanceLateNightThenEarlyMorningIsConsecutive(t *testing.T) {
	streak := Advance(models.Streak{}, models.OutcomeApproved, day(1, 23, 55), time.UTC)
	streak = Advance(streak, models.OutcomeApproved, day(2, 0, 5), time.UTC)
	assert.Equal(t, 2, streak.Current)
}

func TestAdvanceRejectionResetsCurrentOnly(t *testing.T) {
	last := day(3, 9, 0)
	prev := models.Streak{Current: 3, Longest: 5, TotalApproved: 8, LastAdvancedAt: &last}

	next := Advance(prev, models.OutcomeRejected, day(4, 9, 0), time.UTC)

	assert.Equal(t, 0, next.Current)
	assert.Equal(t, 5, next.Longest)
	assert.Equal(t, 8, next.TotalApproved)
	assert.Equal(t, last, *next.LastAdvancedAt)
}

func TestAdvanceMissedDayRestartsAtOne(t *testing.T) {
	var streak models.Streak
	for i := 1; i <= 4; i++ {
		streak = Advance(streak, models.OutcomeApproved, day(i, 8, 0), time.UTC)
	}
	streak = Advance(streak, models.OutcomeApproved, day(7, 8, 0), time.UTC)

	assert.Equal(t, 1, streak.Current)
	assert.Equal(t, 4, streak.Longest)
}

func TestAdvanceSameDayReapprovalCounts(t *testing.T) {
	streak := Advance(models.Streak{}, models.OutcomeApproved, day(1, 8, 0), time.UTC)
	streak = Advance(streak, models.OutcomeApproved, day(1, 20, 0), time.UTC)
	assert.Equal(t, 2, streak.Current)
	assert.Equal(t, 2, streak.Longest)

	streak = Advance(streak, models.OutcomeApproved, day(2, 8, 0), time.UTC)
	streak = Advance(streak, models.OutcomeApproved, day(2, 18, 0), time.UTC)
	assert.Equal(t, 4, streak.Current)
	assert.Equal(t, 4, streak.TotalApproved)
	assert.Equal(t, day(2, 18, 0), *streak.LastAdvancedAt)

	// an approval after a same-day rejection starts again from 1
	streak = Advance(streak, models.OutcomeRejected, day(2, 19, 0), time.UTC)
	streak = Advance(streak, models.OutcomeApproved, day(2, 20, 0), time.UTC)
	assert.Equal(t, 1, streak.Current)
	assert.Equal(t, 4, streak.Longest)
}

func TestAdvanceUsesCalendarDaysInLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 2024-03-01 14:00 UTC and 2024-03-02 16:00 UTC are one day apart in UTC
	// but fall on 03-01 23:00 and 03-03 01:00 in Tokyo
	first := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	second := time.Date(2024, 3, 2, 16, 0, 0, 0, time.UTC)

	inUTC := Advance(Advance(models.Streak{}, models.OutcomeApproved, first, time.UTC), models.OutcomeApproved, second, time.UTC)
	inTokyo := Advance(Advance(models.Streak{}, models.OutcomeApproved, first, tokyo), models.OutcomeApproved, second, tokyo)

	assert.Equal(t, 2, inUTC.Current)
	assert.Equal(t, 1, inTokyo.Current)
}

func TestAdvanceOutOfOrderDecisionKeepsLatestTimestamp(t *testing.T) {
	streak := Advance(models.Streak{}, models.OutcomeApproved, day(5, 9, 0), time.UTC)
	streak = Advance(streak, models.OutcomeApproved, day(4, 9, 0), time.UTC)

	assert.Equal(t, day(5, 9, 0), *streak.LastAdvancedAt)
	assert.GreaterOrEqual(t, streak.Longest, streak.Current)
}

func TestOnDecisionPersistsLazily(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewStreakService(store, NewKeyedMutex(), testRetrier(), time.UTC, time.Second)

	stats, err := svc.Stats(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Current)

	streak, err := svc.OnDecision(ctx, "u1", "h1", models.OutcomeRejected, day(1, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, streak.Current)
	stored, err := store.Streaks().Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, stored, "a rejection alone must not create a streak record")

	_, err = svc.OnDecision(ctx, "u1", "h1", models.OutcomeApproved, day(2, 9, 0))
	require.NoError(t, err)
	stored, err = store.Streaks().Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Current)
	assert.Equal(t, 1, stored.TotalApproved)

	_, err = svc.OnDecision(ctx, "u1", "h1", models.Outcome("maybe"), day(2, 9, 0))
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestOnDecisionSerializesSameKey(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewStreakService(store, NewKeyedMutex(), testRetrier(), time.UTC, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.OnDecision(ctx, "u1", "h1", models.OutcomeApproved, day(1, 9, 0))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	streak, err := svc.Stats(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 50, streak.TotalApproved)
	assert.Equal(t, 50, streak.Current)
	assert.Equal(t, 50, streak.Longest)
	assert.Equal(t, 0, svc.locks.size())
}

func TestOnDecisionRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{Store: repository.NewMemoryStore(), failures: 2}
	svc := NewStreakService(store, NewKeyedMutex(), testRetrier(), time.UTC, time.Second)

	streak, err := svc.OnDecision(context.Background(), "u1", "h1", models.OutcomeApproved, day(1, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, streak.Current)
	assert.Equal(t, 3, store.calls)
}

func TestOnDecisionSurfacesExhaustedRetries(t *testing.T) {
	store := &flakyStore{Store: repository.NewMemoryStore(), failures: 10}
	svc := NewStreakService(store, NewKeyedMutex(), testRetrier(), time.UTC, time.Second)

	_, err := svc.OnDecision(context.Background(), "u1", "h1", models.OutcomeApproved, day(1, 9, 0))
	require.ErrorIs(t, err, models.ErrTransientStore)
	assert.Equal(t, 3, store.calls)
}

func TestOnDecisionCompletesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := repository.NewMemoryStore()
	svc := NewStreakService(store, NewKeyedMutex(), testRetrier(), time.UTC, time.Second)

	_, err := svc.OnDecision(ctx, "u1", "h1", models.OutcomeApproved, day(1, 9, 0))
	require.NoError(t, err)
}
