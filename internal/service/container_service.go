package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// ContainerService handles container lifecycle operations.
// Creation is two-phase: a pending metadata record, then the remote
// container; a remote failure deletes the record again.
type ContainerService struct {
	containerRepo repository.ContainerRepository
	fileRepo      repository.FileRepository
	backend       RemoteBackend
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewContainerService creates a new ContainerService.
func NewContainerService(
	containerRepo repository.ContainerRepository,
	fileRepo repository.FileRepository,
	remote RemoteBackend,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ContainerService {
	return &ContainerService{
		containerRepo: containerRepo,
		fileRepo:      fileRepo,
		backend:       remote,
		metrics:       m,
		logger:        logger.With().Str("service", "container").Logger(),
	}
}

// =============================================================================
// Input/Output Types
// =============================================================================

// CreateContainerInput contains the data needed to create a container.
type CreateContainerInput struct {
	Caller      *domain.User
	ContainerID string

	// Tariff defaults to domain.DefaultTariff when nil.
	Tariff *domain.Tariff
}

// CreateContainerOutput contains the created container and its usage report.
type CreateContainerOutput struct {
	Container *domain.Container `json:"container"`
	Limits    domain.Limits     `json:"limits"`
}

// =============================================================================
// Service Methods
// =============================================================================

// Create creates a container in the metadata store and on the backend.
func (s *ContainerService) Create(ctx context.Context, input CreateContainerInput) (*CreateContainerOutput, error) {
	if input.Caller == nil {
		return nil, domain.ErrUnauthenticated
	}

	tariff := domain.DefaultTariff()
	if input.Tariff != nil {
		tariff = *input.Tariff
	}

	container := domain.NewContainer(input.ContainerID, input.Caller.ID, tariff)
	if err := container.Validate(); err != nil {
		return nil, err
	}

	// Phase 1: pending metadata record
	if err := s.containerRepo.Create(ctx, container); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrContainerAlreadyExists, "", container.ID)
		}
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to store container")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	// Phase 2: remote container
	if _, err := s.backend.CreateContainer(ctx, toBackendContainer(container)); err != nil {
		s.logger.Warn().
			Err(err).
			Str("container_id", container.ID).
			Int64("user_id", container.UserID).
			Msg("remote container creation failed, rolling back")
		s.rollbackContainer(ctx, container, false)
		return nil, err
	}

	if _, err := s.containerRepo.SetStatus(ctx, container.ID, domain.StatusActive); err != nil {
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to activate container")
		s.rollbackContainer(ctx, container, true)
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	container.Status = domain.StatusActive

	s.logger.Info().
		Str("container_id", container.ID).
		Int64("user_id", container.UserID).
		Int64("memory_limit", tariff.MemoryLimit).
		Int64("storage_quota", tariff.StorageQuota).
		Int64("file_limit", tariff.FileLimit).
		Msg("container created")

	return &CreateContainerOutput{
		Container: container,
		Limits:    limitsFor(container, 0, 0),
	}, nil
}

// rollbackContainer undoes phase 1, and the remote container when it exists.
// A failed rollback is logged and counted; the janitor sweeps the leftover.
func (s *ContainerService) rollbackContainer(ctx context.Context, container *domain.Container, remoteCreated bool) {
	ctx = context.WithoutCancel(ctx)

	if remoteCreated {
		if err := s.backend.DeleteContainer(ctx, container.UserID, container.ID); err != nil {
			s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to delete remote container during rollback")
		}
	}

	_, err := s.containerRepo.Delete(ctx, container.ID)
	s.metrics.RecordRollback("container", err)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("container_id", container.ID).
			Msg("container rollback failed, record left pending")
		return
	}
	s.logger.Info().Str("container_id", container.ID).Msg("container rolled back")
}

// Get returns an active container the caller may access.
func (s *ContainerService) Get(ctx context.Context, caller *domain.User, id string) (*domain.Container, error) {
	return loadContainer(ctx, s.containerRepo, s.logger, caller, id)
}

// List returns the caller's active containers, oldest first.
func (s *ContainerService) List(ctx context.Context, caller *domain.User) ([]*domain.Container, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}

	all, err := s.containerRepo.ListByUser(ctx, caller.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", caller.ID).Msg("failed to list containers")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	containers := make([]*domain.Container, 0, len(all))
	for _, c := range all {
		if c.IsActive() {
			containers = append(containers, c)
		}
	}
	sort.Slice(containers, func(i, j int) bool {
		return containers[i].CreatedAt.Before(containers[j].CreatedAt)
	})

	return containers, nil
}

// Resolve picks the container a bot command works on: preferredID when set,
// otherwise the caller's first container.
func (s *ContainerService) Resolve(ctx context.Context, caller *domain.User, preferredID string) (*domain.Container, error) {
	if preferredID != "" {
		return s.Get(ctx, caller, preferredID)
	}
	containers, err := s.List(ctx, caller)
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, domain.ErrNoContainers
	}
	return containers[0], nil
}

// Delete removes a container together with its files.
// File deletions are best-effort; a failed remote container delete aborts
// without restoring the files already removed.
func (s *ContainerService) Delete(ctx context.Context, caller *domain.User, id string) error {
	container, err := s.Get(ctx, caller, id)
	if err != nil {
		return err
	}

	files, err := s.fileRepo.ListByContainer(ctx, container.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to list container files")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	for _, f := range files {
		if err := s.backend.DeleteFile(ctx, f.RemotePath(), container.UserID, container.ID); err != nil && !backend.IsNotFound(err) {
			s.logger.Warn().Err(err).Str("file_id", f.ID).Msg("failed to delete remote file")
		}
		if _, err := s.fileRepo.Delete(ctx, f.ID); err != nil {
			s.logger.Warn().Err(err).Str("file_id", f.ID).Msg("failed to delete file record")
		}
	}

	if err := s.backend.DeleteContainer(ctx, container.UserID, container.ID); err != nil && !backend.IsNotFound(err) {
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to delete remote container")
		return err
	}

	deleted, err := s.containerRepo.Delete(ctx, container.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", container.ID).Msg("failed to delete container record")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !deleted {
		return domain.NewDomainError(domain.ErrContainerNotFound, "", container.ID)
	}

	s.logger.Info().
		Str("container_id", container.ID).
		Int("files", len(files)).
		Msg("container deleted")

	return nil
}

// CheckLimits reports usage against the container's tariff. Advisory only.
func (s *ContainerService) CheckLimits(ctx context.Context, id string) (*domain.Limits, error) {
	container, err := s.containerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if container == nil {
		return nil, domain.NewDomainError(domain.ErrContainerNotFound, "", id)
	}

	used, count, err := s.fileRepo.UsageByContainer(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", id).Msg("failed to compute usage")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	limits := limitsFor(container, used, count)
	return &limits, nil
}

// =============================================================================
// Helpers
// =============================================================================

// loadContainer fetches an active container and checks the caller may use it.
// Pending containers are reported as absent.
func loadContainer(ctx context.Context, repo repository.ContainerRepository, logger zerolog.Logger, caller *domain.User, id string) (*domain.Container, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if id == "" {
		return nil, domain.ErrContainerNotFound
	}

	container, err := repo.GetByID(ctx, id)
	if err != nil {
		logger.Error().Err(err).Str("container_id", id).Msg("failed to get container")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if container == nil || !container.IsActive() {
		return nil, domain.NewDomainError(domain.ErrContainerNotFound, "", id)
	}

	if err := Authorize(caller, container.UserID); err != nil {
		return nil, err
	}
	return container, nil
}

func limitsFor(c *domain.Container, usedBytes, fileCount int64) domain.Limits {
	return domain.Limits{
		Storage: domain.NewLimitUsage(usedBytes, c.Tariff.StorageQuota),
		Files:   domain.NewLimitUsage(fileCount, c.Tariff.FileLimit),
	}
}

func toBackendContainer(c *domain.Container) backend.CreateContainerRequest {
	return backend.CreateContainerRequest{
		UserID:       c.UserID,
		ContainerID:  c.ID,
		MemoryLimit:  c.Tariff.MemoryLimit,
		StorageQuota: c.Tariff.StorageQuota,
		FileLimit:    c.Tariff.FileLimit,
		EnvLabel:     backend.Label{Key: c.EnvLabel.Key, Value: c.EnvLabel.Value},
		TypeLabel:    backend.Label{Key: c.TypeLabel.Key, Value: c.TypeLabel.Value},
		Commands:     c.Commands,
		Privileged:   c.Privileged,
	}
}
