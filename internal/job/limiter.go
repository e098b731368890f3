package job

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrQueueTimeout fails a job that waited too long for a free worker slot.
var ErrQueueTimeout = errors.New("timed out waiting for a free merge worker")

// DefaultMaxConcurrentJobs is used when no limit is configured.
const DefaultMaxConcurrentJobs = 4

// Limiter caps the number of jobs running at once.
type Limiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter allows maxConcurrent running jobs. Acquire gives up after
// maxWait; zero waits until ctx is done.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire blocks until a slot is free. The caller must Release it.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrQueueTimeout
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active returns the number of held slots.
func (l *Limiter) Active() int { return int(l.active.Load()) }

// Max returns the configured limit.
func (l *Limiter) Max() int { return l.max }
