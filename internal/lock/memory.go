package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sweepInterval = 30 * time.Second

// lease is one held key.
type lease struct {
	token  string
	expiry time.Time
}

// MemoryLocker keeps leases in a map. Locks die with the process.
type MemoryLocker struct {
	mu       sync.Mutex
	leases   map[string]lease
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryLocker creates a locker and starts its expiry sweep. Call Stop when done.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		leases: make(map[string]lease),
		done:   make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *MemoryLocker) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key := range m.leases {
				m.liveLocked(key, now)
			}
			m.mu.Unlock()
		}
	}
}

// Stop ends the expiry sweep.
func (m *MemoryLocker) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// liveLocked returns the unexpired lease on key, forgetting an expired one.
// The caller holds m.mu.
func (m *MemoryLocker) liveLocked(key string, now time.Time) (lease, bool) {
	l, ok := m.leases[key]
	if !ok {
		return lease{}, false
	}
	if !now.Before(l.expiry) {
		delete(m.leases, key)
		return lease{}, false
	}
	return l, true
}

// Acquire takes key for ttl and returns its owner token, or "" when the key
// is held.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if _, held := m.liveLocked(key, now); held {
		return "", nil
	}
	token := uuid.NewString()
	m.leases[key] = lease{token: token, expiry: now.Add(ttl)}
	return token, nil
}

// AcquireWithRetry polls Acquire until it wins or the retries run out.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, retries int, delay time.Duration) (string, error) {
	return retryAcquire(ctx, m, key, ttl, retries, delay)
}

// Release frees key when token still owns it.
func (m *MemoryLocker) Release(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, held := m.liveLocked(key, time.Now())
	if !held || l.token != token {
		return false, nil
	}
	delete(m.leases, key)
	return true, nil
}

// Extend moves the expiry of key to now+ttl when token still owns it.
func (m *MemoryLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	l, held := m.liveLocked(key, now)
	if !held || l.token != token {
		return false, nil
	}
	l.expiry = now.Add(ttl)
	m.leases[key] = l
	return true, nil
}

var _ Locker = (*MemoryLocker)(nil)
