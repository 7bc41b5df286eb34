// Package repository defines data access interfaces for Owl Middleware.
// These interfaces abstract the metadata store, allowing MongoDB, PostgreSQL,
// SQLite or in-memory test implementations behind the same service layer.
//
// Every implementation follows the same contract:
//   - Create returns ErrAlreadyExists when the natural key is taken.
//   - Get* returns (nil, nil) when the record is absent.
//   - Update*/Delete/SetStatus return false, not an error, when the id is absent.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create inserts a new user.
	// Returns ErrAlreadyExists when the id, telegram id or email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByTelegramID retrieves a user by Telegram id.
	GetByTelegramID(ctx context.Context, tgID int64) (*domain.User, error)

	// GetByEmail retrieves a user by (lower-cased) email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update applies the non-nil fields of patch.
	Update(ctx context.Context, id int64, patch domain.UserPatch) (bool, error)

	// Delete deletes a user by ID.
	Delete(ctx context.Context, id int64) (bool, error)

	// List returns all users ordered by id.
	List(ctx context.Context) ([]*domain.User, error)
}

// =============================================================================
// Container Repository
// =============================================================================

// ContainerRepository defines the interface for container data access.
type ContainerRepository interface {
	// Create inserts a new container.
	// Returns ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, container *domain.Container) error

	// GetByID retrieves a container by ID.
	GetByID(ctx context.Context, id string) (*domain.Container, error)

	// ListByUser returns all containers owned by a user. Order is not guaranteed.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Container, error)

	// SetStatus moves a container between pending and active.
	SetStatus(ctx context.Context, id string, status domain.Status) (bool, error)

	// ListPendingBefore returns pending containers created before t.
	ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.Container, error)

	// Delete deletes a container by ID.
	Delete(ctx context.Context, id string) (bool, error)
}

// =============================================================================
// File Repository
// =============================================================================

// FileRepository defines the interface for file metadata access.
type FileRepository interface {
	// Create inserts a new file record.
	// Returns ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, file *domain.File) error

	// GetByID retrieves a file by ID.
	GetByID(ctx context.Context, id string) (*domain.File, error)

	// ListByContainer returns all files of a container. Order is not guaranteed.
	ListByContainer(ctx context.Context, containerID string) ([]*domain.File, error)

	// ListByUser returns all files owned by a user. Order is not guaranteed.
	ListByUser(ctx context.Context, userID int64) ([]*domain.File, error)

	// SetStatus moves a file between pending and active.
	SetStatus(ctx context.Context, id string, status domain.Status) (bool, error)

	// ListPendingBefore returns pending files created before t.
	ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.File, error)

	// UsageByContainer returns the total size and count of a container's files,
	// pending records included.
	UsageByContainer(ctx context.Context, containerID string) (bytes int64, count int64, err error)

	// Delete deletes a file by ID.
	Delete(ctx context.Context, id string) (bool, error)
}
