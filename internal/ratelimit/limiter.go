// Package ratelimit throttles how often a chat may trigger bot actions.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Action classes used to build limiter keys
const (
	ActionCommand  = "command"
	ActionPhoto    = "photo"
	ActionCallback = "callback"
	ActionHTTP     = "http"
)

// Key combines a subject (chat or user id) with an action class
func Key(subject, action string) string {
	return fmt.Sprintf("%s:%s", subject, action)
}

// Limiter keeps one bucket per key. Each bucket holds up to capacity tokens
// and refills continuously at ratePerSec; fractional tokens carry over
// between calls. Buckets start full, are created on first use and are never
// expired, since keys are bounded by the number of active chats.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	capacity int
	rate     rate.Limit
	now      func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with the given bucket capacity and refill rate
func New(capacity int, ratePerSec float64, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		capacity: capacity,
		rate:     rate.Limit(ratePerSec),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow withdraws one token from key's bucket. It never blocks and reports
// false, leaving the bucket untouched, when no whole token is available.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).AllowN(l.now(), 1)
}

// Tokens reports the tokens currently available for key, mainly for diagnostics.
// It does not create a bucket; unseen keys report a full bucket.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return float64(l.capacity)
	}
	return b.TokensAt(l.now())
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = rate.NewLimiter(l.rate, l.capacity)
	l.buckets[key] = b
	return b
}

// Len returns the number of buckets created so far
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
