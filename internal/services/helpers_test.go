package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"habit-streak-backend/internal/config"
	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID string
	msg    models.OutboundMessage
}

// recordingTransport keeps every message and can fail sends for chosen chats
type recordingTransport struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{failTo: make(map[string]bool)}
}

func (t *recordingTransport) Send(_ context.Context, chatID string, msg models.OutboundMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTo[chatID] {
		return errors.New("chat unreachable")
	}
	t.sent = append(t.sent, sentMessage{chatID: chatID, msg: msg})
	return nil
}

func (t *recordingTransport) to(chatID string) []models.OutboundMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.OutboundMessage
	for _, s := range t.sent {
		if s.chatID == chatID {
			out = append(out, s.msg)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLinker struct{}

func (fakeLinker) ViewURL(_ context.Context, ref string) (string, error) {
	return "https://photos.example/" + ref, nil
}

// flakyStore fails the first n transactions with a transient error
type flakyStore struct {
	repository.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return errors.Join(models.ErrTransientStore, errors.New("connection reset"))
	}
	return s.Store.WithinTx(ctx, fn)
}

func testRetrier() *Retrier {
	return NewRetrier(config.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
}

func day(d, hour, minute int) time.Time {
	return time.Date(2024, time.March, d, hour, minute, 0, 0, time.UTC)
}

func createHabit(t *testing.T, store repository.Store, id, userID, name, clock string) *models.Habit {
	t.Helper()
	habit := &models.Habit{
		ID:               id,
		UserID:           userID,
		Name:             name,
		NotificationTime: clock,
		Active:           true,
		CreatedAt:        day(1, 0, 0),
	}
	require.NoError(t, store.Habits().Create(context.Background(), habit))
	return habit
}

type reviewFixture struct {
	store     *repository.MemoryStore
	transport *recordingTransport
	events    *recordingPublisher
	streaks   *StreakService
	reviews   *ReviewService
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	transport := newRecordingTransport()
	events := &recordingPublisher{}
	streaks := NewStreakService(store, NewKeyedMutex(), testRetrier(), time.UTC, time.Second)
	return &reviewFixture{
		store:     store,
		transport: transport,
		events:    events,
		streaks:   streaks,
		reviews:   NewReviewService(store, streaks, transport, fakeLinker{}, events, []string{"admin"}),
	}
}

// failingStreakStore fails every streak write made inside a transaction
type failingStreakStore struct {
	repository.Store
}

func (s *failingStreakStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(failingStreakTx{tx})
	})
}

type failingStreakTx struct {
	repository.Store
}

func (t failingStreakTx) Streaks() repository.StreakStore {
	return failingStreaks{t.Store.Streaks()}
}

type failingStreaks struct {
	repository.StreakStore
}

func (failingStreaks) Upsert(context.Context, *models.Streak) error {
	return errors.New("disk full")
}
