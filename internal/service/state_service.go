package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/lock"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// State defaults.
const (
	DefaultStateTTL     = 24 * time.Hour
	DefaultStateLockTTL = 30 * time.Second
)

// StateService keeps ephemeral per-user bot state in a cache.
// Every mutation runs under the user's lock, so concurrent updates of one
// user are serialized even across instances sharing Redis.
type StateService struct {
	cache   repository.Cache
	locker  lock.Locker
	keys    repository.CacheKey
	ttl     time.Duration
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewStateService creates a new StateService.
func NewStateService(cache repository.Cache, locker lock.Locker, ttl, lockTTL time.Duration, m *metrics.Metrics, logger zerolog.Logger) *StateService {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if lockTTL <= 0 {
		lockTTL = DefaultStateLockTTL
	}
	return &StateService{
		cache:   cache,
		locker:  locker,
		ttl:     ttl,
		lockTTL: lockTTL,
		metrics: m,
		logger:  logger.With().Str("service", "state").Logger(),
	}
}

// Get returns the user's state, a fresh one when none is stored.
func (s *StateService) Get(ctx context.Context, userID int64) (*domain.UserState, error) {
	return s.load(ctx, userID)
}

// SetWorkContainer selects the container bot commands operate on.
func (s *StateService) SetWorkContainer(ctx context.Context, userID int64, containerID string) error {
	return s.update(ctx, userID, func(st *domain.UserState) {
		st.WorkContainerID = containerID
	})
}

// WorkContainer returns the selected container id, or "".
func (s *StateService) WorkContainer(ctx context.Context, userID int64) (string, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	return st.WorkContainerID, nil
}

// ClearWorkContainer drops the selection, e.g. after the container was deleted.
func (s *StateService) ClearWorkContainer(ctx context.Context, userID int64) error {
	return s.SetWorkContainer(ctx, userID, "")
}

// SetMetadata stores value under key. An empty value removes the key.
func (s *StateService) SetMetadata(ctx context.Context, userID int64, key, value string) error {
	return s.update(ctx, userID, func(st *domain.UserState) {
		if value == "" {
			delete(st.Metadata, key)
			return
		}
		st.Metadata[key] = value
	})
}

// Metadata returns the value stored under key, or "".
func (s *StateService) Metadata(ctx context.Context, userID int64, key string) (string, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	return st.Metadata[key], nil
}

// Touch records activity without changing anything else.
func (s *StateService) Touch(ctx context.Context, userID int64) error {
	return s.update(ctx, userID, func(*domain.UserState) {})
}

// CleanupOlderThan drops states idle for longer than d and returns how many.
func (s *StateService) CleanupOlderThan(ctx context.Context, d time.Duration) (int, error) {
	keys, err := s.cache.Keys(ctx, repository.UserStatePrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	cutoff := time.Now().UTC().Add(-d)
	removed := 0
	for _, key := range keys {
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, repository.UserStatePrefix), 10, 64)
		if err != nil {
			continue
		}

		err = lock.WithLock(ctx, s.locker, lock.Keys.UserState(userID), s.lockTTL, func(ctx context.Context) error {
			st, err := s.load(ctx, userID)
			if err != nil {
				return err
			}
			if !st.LastActivity.Before(cutoff) {
				return nil
			}
			if err := s.cache.Delete(ctx, key); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to clean up user state")
		}
	}

	s.metrics.RecordStateCleanup(removed)
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Dur("idle", d).Msg("idle user states removed")
	}
	return removed, nil
}

func (s *StateService) update(ctx context.Context, userID int64, fn func(st *domain.UserState)) error {
	return lock.WithLock(ctx, s.locker, lock.Keys.UserState(userID), s.lockTTL, func(ctx context.Context) error {
		st, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		fn(st)
		st.Touch()
		return s.save(ctx, st)
	})
}

func (s *StateService) load(ctx context.Context, userID int64) (*domain.UserState, error) {
	raw, err := s.cache.Get(ctx, s.keys.UserState(userID))
	if errors.Is(err, repository.ErrCacheMiss) {
		return domain.NewUserState(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	var st domain.UserState
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("discarding corrupt user state")
		return domain.NewUserState(userID), nil
	}
	if st.Metadata == nil {
		st.Metadata = make(map[string]string)
	}
	return &st, nil
}

func (s *StateService) save(ctx context.Context, st *domain.UserState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if err := s.cache.Set(ctx, s.keys.UserState(st.UserID), raw, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return nil
}
