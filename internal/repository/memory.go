package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"habit-streak-backend/internal/models"
)

type streakKey struct {
	userID  string
	habitID string
}

type memoryData struct {
	users       map[string]models.User
	habits      map[string]models.Habit
	submissions map[string]models.Submission
	streaks     map[streakKey]models.Streak
}

func (d *memoryData) clone() *memoryData {
	return &memoryData{
		users:       maps.Clone(d.users),
		habits:      maps.Clone(d.habits),
		submissions: maps.Clone(d.submissions),
		streaks:     maps.Clone(d.streaks),
	}
}

// MemoryStore implements Store in process memory for local development and tests.
// Records are stored by value; pointer fields are replaced, never mutated in place.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		data: &memoryData{
			users:       make(map[string]models.User),
			habits:      make(map[string]models.Habit),
			submissions: make(map[string]models.Submission),
			streaks:     make(map[streakKey]models.Streak),
		},
	}
}

func (s *MemoryStore) Habits() HabitStore           { return memoryHabits{s} }
func (s *MemoryStore) Submissions() SubmissionStore { return memorySubmissions{s} }
func (s *MemoryStore) Streaks() StreakStore         { return memoryStreaks{s} }
func (s *MemoryStore) Users() UserStore             { return memoryUsers{s} }

// WithinTx holds the store lock for the duration of fn and restores the
// previous contents if fn fails.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&MemoryStore{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// enter acquires the store lock unless the caller already holds it through WithinTx
func (s *MemoryStore) enter(ctx context.Context) (func(), error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if s.inTx {
		return func() {}, nil
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("memory store: %w: %w", models.ErrTransientStore, err)
	}
	return err
}

type memoryHabits struct{ s *MemoryStore }

func (m memoryHabits) Create(ctx context.Context, habit *models.Habit) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := m.s.data.habits[habit.ID]; exists {
		return fmt.Errorf("failed to create habit: %w", models.ErrConflict)
	}
	m.s.data.habits[habit.ID] = *habit
	return nil
}

func (m memoryHabits) Get(ctx context.Context, id string) (*models.Habit, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	habit, ok := m.s.data.habits[id]
	if !ok {
		return nil, notFound("habit")
	}
	return &habit, nil
}

func (m memoryHabits) ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*models.Habit, error) {
	return m.filter(ctx, func(h *models.Habit) bool {
		return h.UserID == userID && (h.Active || includeInactive)
	})
}

func (m memoryHabits) ListDueForNotification(ctx context.Context, asOf time.Time) ([]*models.Habit, error) {
	return m.filter(ctx, func(h *models.Habit) bool {
		return h.DueAt(asOf)
	})
}

func (m memoryHabits) filter(ctx context.Context, keep func(*models.Habit) bool) ([]*models.Habit, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	habits := make([]*models.Habit, 0)
	for _, habit := range m.s.data.habits {
		if keep(&habit) {
			habits = append(habits, &habit)
		}
	}
	sort.Slice(habits, func(i, j int) bool {
		if !habits[i].CreatedAt.Equal(habits[j].CreatedAt) {
			return habits[i].CreatedAt.Before(habits[j].CreatedAt)
		}
		return habits[i].ID < habits[j].ID
	})
	return habits, nil
}

func (m memoryHabits) Update(ctx context.Context, habit *models.Habit) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	stored, ok := m.s.data.habits[habit.ID]
	if !ok {
		return notFound("habit")
	}
	stored.Name = habit.Name
	stored.NotificationTime = habit.NotificationTime
	stored.Active = habit.Active
	m.s.data.habits[habit.ID] = stored
	return nil
}

func (m memoryHabits) MarkNotified(ctx context.Context, id string, at time.Time) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	stored, ok := m.s.data.habits[id]
	if !ok {
		return notFound("habit")
	}
	stored.LastNotifiedAt = &at
	m.s.data.habits[id] = stored
	return nil
}

func (m memoryHabits) Delete(ctx context.Context, id string) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.s.data.habits[id]; !ok {
		return notFound("habit")
	}
	delete(m.s.data.habits, id)
	return nil
}

type memorySubmissions struct{ s *MemoryStore }

func (m memorySubmissions) Create(ctx context.Context, sub *models.Submission) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := m.s.data.submissions[sub.ID]; exists {
		return fmt.Errorf("failed to create submission: %w", models.ErrConflict)
	}
	if sub.Status == models.StatusPending && m.pendingLocked(sub.UserID, sub.HabitID) != nil {
		return fmt.Errorf("failed to create submission: %w", models.ErrConflict)
	}
	m.s.data.submissions[sub.ID] = *sub
	return nil
}

func (m memorySubmissions) Get(ctx context.Context, id string) (*models.Submission, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, ok := m.s.data.submissions[id]
	if !ok {
		return nil, notFound("submission")
	}
	return &sub, nil
}

func (m memorySubmissions) FindPending(ctx context.Context, userID, habitID string) (*models.Submission, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return m.pendingLocked(userID, habitID), nil
}

func (m memorySubmissions) pendingLocked(userID, habitID string) *models.Submission {
	for _, sub := range m.s.data.submissions {
		if sub.UserID == userID && sub.HabitID == habitID && sub.Status == models.StatusPending {
			return &sub
		}
	}
	return nil
}

func (m memorySubmissions) UpdateStatus(
	ctx context.Context,
	id string,
	status models.SubmissionStatus,
	reviewerID string,
	reviewedAt time.Time,
	reason *string,
) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	sub, ok := m.s.data.submissions[id]
	if !ok || sub.Status != models.StatusPending {
		return errors.Join(models.ErrInvalidState, errors.New("submission is not pending"))
	}
	sub.Status = status
	sub.ReviewerID = &reviewerID
	sub.ReviewedAt = &reviewedAt
	sub.RejectionReason = reason
	m.s.data.submissions[id] = sub
	return nil
}

func (m memorySubmissions) Pending(ctx context.Context) ([]*models.Submission, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	subs := make([]*models.Submission, 0)
	for _, sub := range m.s.data.submissions {
		if sub.Status == models.StatusPending {
			subs = append(subs, &sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (m memorySubmissions) HasActiveSince(ctx context.Context, userID, habitID string, since time.Time) (bool, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, sub := range m.s.data.submissions {
		if sub.UserID != userID || sub.HabitID != habitID || sub.Status == models.StatusRejected {
			continue
		}
		if !sub.SubmittedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type memoryStreaks struct{ s *MemoryStore }

func (m memoryStreaks) Get(ctx context.Context, userID, habitID string) (*models.Streak, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	streak, ok := m.s.data.streaks[streakKey{userID, habitID}]
	if !ok {
		return nil, nil
	}
	return &streak, nil
}

func (m memoryStreaks) Upsert(ctx context.Context, streak *models.Streak) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m.s.data.streaks[streakKey{streak.UserID, streak.HabitID}] = *streak
	return nil
}

func (m memoryStreaks) ListByUser(ctx context.Context, userID string) ([]*models.Streak, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	streaks := make([]*models.Streak, 0)
	for _, key := range slices.SortedFunc(maps.Keys(m.s.data.streaks), func(a, b streakKey) int {
		return strings.Compare(a.habitID, b.habitID)
	}) {
		if key.userID != userID {
			continue
		}
		streak := m.s.data.streaks[key]
		streaks = append(streaks, &streak)
	}
	return streaks, nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(ctx context.Context, user *models.User) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := m.s.data.users[user.ID]; exists {
		return fmt.Errorf("failed to create user: %w", models.ErrConflict)
	}
	m.s.data.users[user.ID] = *user
	return nil
}

func (m memoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, ok := m.s.data.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &user, nil
}

func (m memoryUsers) CodeExists(ctx context.Context, code string) (bool, error) {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, user := range m.s.data.users {
		if user.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m memoryUsers) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	unlock, err := m.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	user, ok := m.s.data.users[userID]
	if !ok {
		return notFound("user")
	}
	user.PushToken = pushToken
	m.s.data.users[userID] = user
	return nil
}
