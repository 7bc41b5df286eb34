package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/lock"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// Janitor job names, used in logs and metrics.
const (
	JobStateCleanup = "state_cleanup"
	JobReconcile    = "reconcile"
	JobHealth       = "health"
)

// JanitorConfig contains background maintenance configuration.
type JanitorConfig struct {
	// Enabled determines if the jobs are scheduled.
	Enabled bool

	// Cron specs of the three jobs.
	StateCleanupSchedule string
	ReconcileSchedule    string
	HealthSchedule       string

	// GracePeriod is how long a record may stay pending before it is
	// considered a leftover of an interrupted two-phase operation.
	GracePeriod time.Duration

	// StateTTL is the idle time after which user state is dropped.
	StateTTL time.Duration

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool

	// LockTTL is the lease of a job lock. A running job renews it every
	// third of the TTL.
	LockTTL time.Duration
}

// DefaultJanitorConfig returns sensible defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Enabled:              true,
		StateCleanupSchedule: "@every 1h",
		ReconcileSchedule:    "@every 10m",
		HealthSchedule:       "@every 1m",
		GracePeriod:          15 * time.Minute,
		StateTTL:             DefaultStateTTL,
		LockTTL:              5 * time.Minute,
	}
}

// JanitorService runs the scheduled maintenance jobs: idle state cleanup,
// reconciliation of pending records and backend health probes.
type JanitorService struct {
	containerRepo repository.ContainerRepository
	fileRepo      repository.FileRepository
	backend       RemoteBackend
	state         *StateService
	locker        lock.Locker
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	config        JanitorConfig

	// Control
	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// NewJanitorService creates a new janitor.
func NewJanitorService(
	containerRepo repository.ContainerRepository,
	fileRepo repository.FileRepository,
	remote RemoteBackend,
	state *StateService,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config JanitorConfig,
) *JanitorService {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultJanitorConfig().GracePeriod
	}
	if config.StateTTL <= 0 {
		config.StateTTL = DefaultStateTTL
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultJanitorConfig().LockTTL
	}
	return &JanitorService{
		containerRepo: containerRepo,
		fileRepo:      fileRepo,
		backend:       remote,
		state:         state,
		locker:        locker,
		metrics:       m,
		logger:        logger.With().Str("service", "janitor").Logger(),
		config:        config,
	}
}

// Start schedules the jobs.
func (j *JanitorService) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	c := cron.New(cron.WithLogger(cronLogger{j.logger}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{j.logger})))
	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context)
	}{
		{JobStateCleanup, j.config.StateCleanupSchedule, func(ctx context.Context) { _, _ = j.CleanupState(ctx) }},
		{JobReconcile, j.config.ReconcileSchedule, func(ctx context.Context) { j.Reconcile(ctx) }},
		{JobHealth, j.config.HealthSchedule, func(ctx context.Context) { j.ProbeBackend(ctx) }},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		run := job.run
		if _, err := c.AddFunc(job.schedule, func() { run(context.Background()) }); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.schedule, err)
		}
	}

	j.logger.Info().
		Str("state_cleanup", j.config.StateCleanupSchedule).
		Str("reconcile", j.config.ReconcileSchedule).
		Str("health", j.config.HealthSchedule).
		Dur("grace_period", j.config.GracePeriod).
		Bool("dry_run", j.config.DryRun).
		Msg("Starting janitor")

	c.Start()
	j.cron = c
	j.running = true
	return nil
}

// Stop stops scheduling and waits for running jobs.
func (j *JanitorService) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	c := j.cron
	j.mu.Unlock()

	<-c.Stop().Done()
	j.logger.Info().Msg("Janitor stopped")
}

// JanitorResult is the outcome of RunOnce.
type JanitorResult struct {
	StatesRemoved int             `json:"states_removed"`
	Reconcile     ReconcileResult `json:"reconcile"`
	BackendUp     bool            `json:"backend_up"`
}

// RunOnce runs every job once. Used by the admin CLI.
func (j *JanitorService) RunOnce(ctx context.Context) JanitorResult {
	var res JanitorResult
	res.StatesRemoved, _ = j.CleanupState(ctx)
	res.Reconcile = j.Reconcile(ctx)
	res.BackendUp = j.ProbeBackend(ctx)
	return res
}

// CleanupState drops user state idle for longer than the state TTL.
func (j *JanitorService) CleanupState(ctx context.Context) (int, error) {
	j.metrics.RecordJanitorRun(JobStateCleanup)
	if j.state == nil {
		return 0, nil
	}

	var removed int
	err := j.exclusive(ctx, lock.Keys.StateCleanup(), func(ctx context.Context) error {
		var err error
		removed, err = j.state.CleanupOlderThan(ctx, j.config.StateTTL)
		return err
	})
	if errors.Is(err, errLockBusy) {
		return 0, nil
	}
	if err != nil {
		j.logger.Error().Err(err).Msg("state cleanup failed")
	}
	return removed, err
}

// ProbeBackend checks the backend and publishes the result.
func (j *JanitorService) ProbeBackend(ctx context.Context) bool {
	j.metrics.RecordJanitorRun(JobHealth)
	up, err := j.backend.Health(ctx)
	if err != nil {
		up = false
	}
	j.metrics.SetBackendUp(up)
	if !up {
		j.logger.Warn().Err(err).Msg("backend is down")
	}
	return up
}

// ReconcileResult contains the result of a reconciliation run.
type ReconcileResult struct {
	// FilesRemoved is the number of pending file records deleted.
	FilesRemoved int `json:"files_removed"`

	// ContainersRemoved is the number of pending container records deleted.
	ContainersRemoved int `json:"containers_removed"`

	// Errors is the number of records left for the next run.
	Errors int `json:"errors"`

	// Skipped is set when another instance held the lock.
	Skipped bool `json:"skipped"`

	Duration time.Duration `json:"duration"`
}

// Reconcile removes records stuck in pending past the grace period, the
// leftovers of a crash between the two phases of a create. The remote
// counterpart is deleted first; a record whose remote delete fails stays
// for the next run.
func (j *JanitorService) Reconcile(ctx context.Context) ReconcileResult {
	start := time.Now()
	result := ReconcileResult{}
	j.metrics.RecordJanitorRun(JobReconcile)

	j.logger.Debug().Msg("Starting reconciliation run")

	err := j.exclusive(ctx, lock.Keys.Reconcile(), func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-j.config.GracePeriod)
		j.reconcileFiles(ctx, cutoff, &result)
		j.reconcileContainers(ctx, cutoff, &result)
		return nil
	})
	if errors.Is(err, errLockBusy) {
		j.logger.Debug().Msg("Reconcile lock held by another process, skipping run")
		result.Skipped = true
	} else if err != nil {
		j.logger.Error().Err(err).Msg("Failed to acquire reconcile lock")
		result.Errors++
	}

	result.Duration = time.Since(start)
	j.metrics.RecordReconciled("file", result.FilesRemoved)
	j.metrics.RecordReconciled("container", result.ContainersRemoved)

	if result.FilesRemoved > 0 || result.ContainersRemoved > 0 || result.Errors > 0 {
		j.logger.Info().
			Int("files_removed", result.FilesRemoved).
			Int("containers_removed", result.ContainersRemoved).
			Int("errors", result.Errors).
			Dur("duration", result.Duration).
			Msg("Reconciliation run completed")
	}

	return result
}

func (j *JanitorService) reconcileFiles(ctx context.Context, cutoff time.Time, result *ReconcileResult) {
	files, err := j.fileRepo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to list pending files")
		result.Errors++
		return
	}

	for _, f := range files {
		if j.config.DryRun {
			j.logger.Info().Str("file_id", f.ID).Msg("[DRY RUN] Would delete pending file")
			result.FilesRemoved++
			continue
		}
		if !j.removeFile(ctx, f) {
			result.Errors++
			continue
		}
		result.FilesRemoved++
	}
}

func (j *JanitorService) reconcileContainers(ctx context.Context, cutoff time.Time, result *ReconcileResult) {
	containers, err := j.containerRepo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to list pending containers")
		result.Errors++
		return
	}

	for _, c := range containers {
		if j.config.DryRun {
			j.logger.Info().Str("container_id", c.ID).Msg("[DRY RUN] Would delete pending container")
			result.ContainersRemoved++
			continue
		}

		files, err := j.fileRepo.ListByContainer(ctx, c.ID)
		if err != nil {
			j.logger.Error().Err(err).Str("container_id", c.ID).Msg("Failed to list files of pending container")
			result.Errors++
			continue
		}
		clean := true
		for _, f := range files {
			clean = j.removeFile(ctx, f) && clean
		}
		if !clean {
			result.Errors++
			continue
		}

		if err := j.backend.DeleteContainer(ctx, c.UserID, c.ID); err != nil && !backend.IsNotFound(err) {
			j.logger.Error().Err(err).Str("container_id", c.ID).Msg("Failed to delete remote container")
			result.Errors++
			continue
		}
		if _, err := j.containerRepo.Delete(ctx, c.ID); err != nil {
			j.logger.Error().Err(err).Str("container_id", c.ID).Msg("Failed to delete container record")
			result.Errors++
			continue
		}

		j.logger.Debug().Str("container_id", c.ID).Msg("Deleted pending container")
		result.ContainersRemoved++
	}
}

// removeFile deletes the remote content, then the record.
func (j *JanitorService) removeFile(ctx context.Context, f *domain.File) bool {
	if err := j.backend.DeleteFile(ctx, f.RemotePath(), f.UserID, f.ContainerID); err != nil && !backend.IsNotFound(err) {
		j.logger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to delete remote file")
		return false
	}
	if _, err := j.fileRepo.Delete(ctx, f.ID); err != nil {
		j.logger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to delete file record")
		return false
	}
	j.logger.Debug().Str("file_id", f.ID).Msg("Deleted pending file")
	return true
}

var errLockBusy = errors.New("janitor lock busy")

// exclusive runs fn under a cluster-wide lock without waiting for it. The
// lease is renewed while fn runs; fn's context ends if the lease is lost.
func (j *JanitorService) exclusive(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := j.locker.Acquire(ctx, key, j.config.LockTTL)
	if err != nil {
		return err
	}
	if token == "" {
		return errLockBusy
	}

	held, stop := lock.Hold(ctx, j.locker, key, token, j.config.LockTTL)
	defer func() {
		stop()
		if _, err := j.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			j.logger.Error().Err(err).Str("lock", key).Msg("Failed to release janitor lock")
		}
	}()

	err = fn(held)
	if cause := context.Cause(held); errors.Is(cause, lock.ErrLost) {
		j.logger.Warn().Str("lock", key).Msg("Janitor lock lost during run")
		return errors.Join(err, cause)
	}
	return err
}

// cronLogger routes scheduler logs through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
