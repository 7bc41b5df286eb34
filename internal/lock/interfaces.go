// Package lock serializes work on per-user state and keeps janitor jobs
// exclusive. MemoryLocker serves a single process; RedisLocker is shared by
// every gateway instance pointed at the same Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Locker hands out expiring, named locks. Acquire returns an owner token and
// Release and Extend only act while the key still carries that token.
type Locker interface {
	// Acquire takes key for ttl. It returns "" when someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)

	// AcquireWithRetry polls Acquire up to maxRetries more times, retryDelay apart.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (string, error)

	// Release frees key if token still owns it.
	Release(ctx context.Context, key, token string) (bool, error)

	// Extend pushes the expiry of key to now+ttl if token still owns it.
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// ErrNotAcquired is returned by WithLock when the lock stays busy.
var ErrNotAcquired = errors.New("lock not acquired")

// ErrLost cancels the context handed out by Hold once renewal fails.
var ErrLost = errors.New("lock lost")

const (
	retryDelay   = 20 * time.Millisecond
	maxRetries   = 250
	releaseGrace = 5 * time.Second
)

// WithLock runs fn while holding key. A busy key is polled for about five seconds.
func WithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := locker.AcquireWithRetry(ctx, key, ttl, maxRetries, retryDelay)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	defer release(ctx, locker, key, token)

	return fn(ctx)
}

// release frees key even when ctx is already cancelled.
func release(ctx context.Context, locker Locker, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseGrace)
	defer cancel()
	_, _ = locker.Release(releaseCtx, key, token)
}

// Hold renews a held lock every ttl/3 until stop is called. The returned
// context is cancelled with ErrLost when a renewal fails. stop does not
// release the lock.
func Hold(ctx context.Context, locker Locker, key, token string, ttl time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := locker.Extend(ctx, key, token, ttl)
				if err != nil || !ok {
					cancel(fmt.Errorf("%w: %s", ErrLost, key))
					return
				}
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			cancel(nil)
		})
	}
}

// retryAcquire polls Acquire until it succeeds, retries run out or ctx ends.
func retryAcquire(ctx context.Context, l Locker, key string, ttl time.Duration, retries int, delay time.Duration) (string, error) {
	for attempt := 0; ; attempt++ {
		token, err := l.Acquire(ctx, key, ttl)
		if err != nil || token != "" {
			return token, err
		}
		if attempt >= retries {
			return "", nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

// Keys names the locks the gateway takes.
var Keys keyspace

type keyspace struct{}

// UserState guards one user's work container and metadata.
func (keyspace) UserState(userID int64) string {
	return "lock:state:user:" + strconv.FormatInt(userID, 10)
}

// Reconcile guards the pending-record reconciliation job.
func (keyspace) Reconcile() string {
	return "lock:janitor:reconcile"
}

// StateCleanup guards the idle-state sweep.
func (keyspace) StateCleanup() string {
	return "lock:janitor:state"
}
