package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func TestLimiterBurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	limiter := New(5, 1, WithClock(clock.Now))
	key := Key("chat-1", ActionCommand)

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow(key), "call %d should be admitted", i+1)
	}
	require.False(t, limiter.Allow(key), "6th call should be rejected")

	clock.Advance(time.Second)
	require.True(t, limiter.Allow(key))
	require.False(t, limiter.Allow(key))
}

func TestLimiterKeepsFractionalTokens(t *testing.T) {
	clock := newFakeClock()
	limiter := New(1, 0.5, WithClock(clock.Now))
	key := Key("chat-1", ActionPhoto)

	require.True(t, limiter.Allow(key))

	clock.Advance(time.Second)
	require.False(t, limiter.Allow(key))
	require.InDelta(t, 0.5, limiter.Tokens(key), 1e-9)

	clock.Advance(time.Second)
	require.True(t, limiter.Allow(key))
}

func TestLimiterRefillIsCappedAtCapacity(t *testing.T) {
	clock := newFakeClock()
	limiter := New(3, 1, WithClock(clock.Now))
	key := Key("chat-1", ActionCallback)

	require.True(t, limiter.Allow(key))
	clock.Advance(time.Hour)

	admitted := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow(key) {
			admitted++
		}
	}
	require.Equal(t, 3, admitted)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := New(1, 1, WithClock(clock.Now))

	require.True(t, limiter.Allow(Key("chat-1", ActionCommand)))
	require.False(t, limiter.Allow(Key("chat-1", ActionCommand)))
	require.True(t, limiter.Allow(Key("chat-1", ActionPhoto)))
	require.True(t, limiter.Allow(Key("chat-2", ActionCommand)))
	require.Equal(t, 3, limiter.Len())
}

func TestLimiterConcurrentBurstDoesNotDoubleSpend(t *testing.T) {
	clock := newFakeClock()
	limiter := New(5, 1, WithClock(clock.Now))
	key := Key("chat-1", ActionCommand)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(key) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), admitted.Load())
	require.Equal(t, 1, limiter.Len())
}

func TestLimiterTokensDoesNotCreateBuckets(t *testing.T) {
	clock := newFakeClock()
	limiter := New(4, 1, WithClock(clock.Now))

	require.InDelta(t, 4.0, limiter.Tokens(Key("chat-9", ActionCommand)), 1e-9)
	require.Equal(t, 0, limiter.Len())

	require.True(t, limiter.Allow(Key("chat-9", ActionCommand)))
	require.InDelta(t, 3.0, limiter.Tokens(Key("chat-9", ActionCommand)), 1e-9)
	require.Equal(t, 1, limiter.Len())
}
