// Package ratelimit gates order creation per caller: a sliding attempt
// window plus a shorter pending-order window approximating in-flight orders.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrRateLimited    = errors.New("too many order attempts, try again later")
	ErrTooManyPending = errors.New("too many pending orders, wait a moment")
)

type bucket struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	mu       sync.Mutex
	attempts map[string]*bucket
	pending  map[string]*bucket

	window     time.Duration
	maxAttempt int
	pendingWin time.Duration
	maxPending int

	now func() time.Time
}

func New(window time.Duration, maxAttempts int, pendingWindow time.Duration, maxPending int) *Limiter {
	return &Limiter{
		attempts:   make(map[string]*bucket),
		pending:    make(map[string]*bucket),
		window:     window,
		maxAttempt: maxAttempts,
		pendingWin: pendingWindow,
		maxPending: maxPending,
		now:        time.Now,
	}
}

// Admit checks both limits for callerID and consumes quota only when both
// pass. A denied call leaves the counters untouched.
func (l *Limiter) Admit(callerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	att := l.bucketFor(l.attempts, callerID, now, l.window)
	pen := l.bucketFor(l.pending, callerID, now, l.pendingWin)

	if att.count >= l.maxAttempt {
		log.Warn().Str("caller_id", callerID).Int("count", att.count).Msg("ratelimit: attempt window exceeded")
		return ErrRateLimited
	}
	if pen.count >= l.maxPending {
		log.Warn().Str("caller_id", callerID).Int("count", pen.count).Msg("ratelimit: pending window exceeded")
		return ErrTooManyPending
	}

	att.count++
	pen.count++
	return nil
}

func (l *Limiter) bucketFor(m map[string]*bucket, key string, now time.Time, win time.Duration) *bucket {
	b, ok := m[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(win)}
		m[key] = b
	}
	return b
}

// Run prunes expired buckets until ctx is cancelled. Without it the maps
// grow with one entry per caller seen since startup.
func (l *Limiter) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.prune()
		}
	}
}

func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, b := range l.attempts {
		if now.After(b.resetAt) {
			delete(l.attempts, k)
		}
	}
	for k, b := range l.pending {
		if now.After(b.resetAt) {
			delete(l.pending, k)
		}
	}
}
