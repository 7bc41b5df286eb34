package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/lock"
	"github.com/prn-tf/owl-middleware/internal/metrics"
)

type janitorFixture struct {
	svc        *JanitorService
	containers *MockContainerRepository
	files      *MockFileRepository
	remote     *fakeBackend
	locker     *lock.MemoryLocker
	metrics    *metrics.Metrics
}

func newJanitorFixture(t *testing.T, config JanitorConfig) *janitorFixture {
	t.Helper()
	f := &janitorFixture{
		containers: NewMockContainerRepository(),
		files:      NewMockFileRepository(),
		remote:     newFakeBackend(),
		locker:     lock.NewMemoryLocker(),
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	t.Cleanup(f.locker.Stop)
	f.svc = NewJanitorService(f.containers, f.files, f.remote, nil, f.locker, f.metrics, zerolog.Nop(), config)
	return f
}

// seed creates a stale pending container with one pending file, a fresh
// pending file and an active file.
func (f *janitorFixture) seed() {
	old := time.Now().UTC().Add(-time.Hour)

	stale := domain.NewContainer("stale", 42, domain.DefaultTariff())
	stale.CreatedAt = old
	f.containers.containers[stale.ID] = stale
	f.remote.containers[stale.ID] = true

	activeContainer(f.containers, f.remote, "work", 42, domain.DefaultTariff())

	orphan := domain.NewFile("orphan", "work", 42, "orphan.txt", 3, "text/plain")
	orphan.CreatedAt = old
	f.files.files[orphan.ID] = orphan
	f.remote.files["work"+orphan.RemotePath()] = "abc"

	fresh := domain.NewFile("fresh", "work", 42, "fresh.txt", 3, "text/plain")
	f.files.files[fresh.ID] = fresh

	done := domain.NewFile("done", "work", 42, "done.txt", 3, "text/plain")
	done.Status = domain.StatusActive
	done.CreatedAt = old
	f.files.files[done.ID] = done
}

func TestJanitorService_Reconcile(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{GracePeriod: 15 * time.Minute})
	f.seed()

	res := f.svc.Reconcile(context.Background())
	assert.Equal(t, 1, res.FilesRemoved)
	assert.Equal(t, 1, res.ContainersRemoved)
	assert.Zero(t, res.Errors)
	assert.False(t, res.Skipped)

	assert.NotContains(t, f.files.files, "orphan")
	assert.Contains(t, f.files.files, "fresh")
	assert.Contains(t, f.files.files, "done")
	assert.NotContains(t, f.containers.containers, "stale")
	assert.Contains(t, f.containers.containers, "work")
	assert.False(t, f.remote.containers["stale"])
	assert.NotContains(t, f.remote.files, "work/orphan")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReconciledTotal.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReconciledTotal.WithLabelValues("container")))
}

func TestJanitorService_ReconcileDryRun(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{GracePeriod: 15 * time.Minute, DryRun: true})
	f.seed()

	res := f.svc.Reconcile(context.Background())
	assert.Equal(t, 1, res.FilesRemoved)
	assert.Equal(t, 1, res.ContainersRemoved)

	assert.Contains(t, f.files.files, "orphan")
	assert.Contains(t, f.containers.containers, "stale")
	assert.Equal(t, 0, f.remote.count("delete_file"))
	assert.Equal(t, 0, f.remote.count("delete_container"))
}

func TestJanitorService_ReconcileKeepsRecordOnRemoteFailure(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{GracePeriod: 15 * time.Minute})
	f.seed()
	f.remote.deleteFileErr = serviceError("delete_file", 500)
	f.remote.deleteContainerErr = serviceError("delete_container", 500)

	res := f.svc.Reconcile(context.Background())
	assert.Zero(t, res.FilesRemoved)
	assert.Zero(t, res.ContainersRemoved)
	assert.Equal(t, 2, res.Errors)
	assert.Contains(t, f.files.files, "orphan")
	assert.Contains(t, f.containers.containers, "stale")
}

func TestJanitorService_ReconcileSkipsWhenLocked(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{GracePeriod: 15 * time.Minute})
	f.seed()

	token, err := f.locker.Acquire(context.Background(), lock.Keys.Reconcile(), time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	res := f.svc.Reconcile(context.Background())
	assert.True(t, res.Skipped)
	assert.Zero(t, res.FilesRemoved)
	assert.Contains(t, f.files.files, "orphan")
}

func TestJanitorService_ExclusiveRenewsLease(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{LockTTL: 30 * time.Millisecond})
	key := lock.Keys.Reconcile()

	err := f.svc.exclusive(context.Background(), key, func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		token, err := f.locker.Acquire(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, token, "lease must be renewed while the job runs")
		return ctx.Err()
	})
	require.NoError(t, err)

	token, err := f.locker.Acquire(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token, "lock must be released after the job")
}

// lapsingLocker never renews a lease.
type lapsingLocker struct {
	*lock.MemoryLocker
}

func (lapsingLocker) Extend(context.Context, string, string, time.Duration) (bool, error) {
	return false, nil
}

func TestJanitorService_ExclusiveStopsWhenLeaseLost(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{LockTTL: 30 * time.Millisecond})
	f.svc.locker = lapsingLocker{f.locker}

	err := f.svc.exclusive(context.Background(), lock.Keys.Reconcile(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	assert.ErrorIs(t, err, lock.ErrLost)
}

func TestJanitorService_ProbeBackend(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{})

	assert.True(t, f.svc.ProbeBackend(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BackendUp))

	f.remote.healthy = false
	assert.False(t, f.svc.ProbeBackend(context.Background()))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.BackendUp))
}

func TestJanitorService_StartStop(t *testing.T) {
	f := newJanitorFixture(t, DefaultJanitorConfig())
	require.NoError(t, f.svc.Start())
	require.NoError(t, f.svc.Start())
	f.svc.Stop()
	f.svc.Stop()

	bad := newJanitorFixture(t, JanitorConfig{ReconcileSchedule: "not a schedule"})
	assert.Error(t, bad.svc.Start())
}

func TestJanitorService_RunOnceWithoutState(t *testing.T) {
	f := newJanitorFixture(t, JanitorConfig{GracePeriod: time.Minute})

	res := f.svc.RunOnce(context.Background())
	assert.Zero(t, res.StatesRemoved)
	assert.True(t, res.BackendUp)
}
