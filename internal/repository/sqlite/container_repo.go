package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// containerRepository implements repository.ContainerRepository for SQLite.
type containerRepository struct {
	db *DB
}

// NewContainerRepository creates a new SQLite container repository.
func NewContainerRepository(db *DB) repository.ContainerRepository {
	return &containerRepository{db: db}
}

const containerColumns = `id, user_id, memory_limit, storage_quota, file_limit,
	env_label_key, env_label_value, type_label_key, type_label_value,
	privileged, commands, status, created_at`

// Create creates a new container record.
func (r *containerRepository) Create(ctx context.Context, c *domain.Container) error {
	commands, err := json.Marshal(c.Commands)
	if err != nil {
		return fmt.Errorf("failed to encode commands: %w", err)
	}

	query := `
		INSERT INTO containers (` + containerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.Tariff.MemoryLimit,
		c.Tariff.StorageQuota,
		c.Tariff.FileLimit,
		c.EnvLabel.Key,
		c.EnvLabel.Value,
		c.TypeLabel.Key,
		c.TypeLabel.Value,
		boolToInt(c.Privileged),
		string(commands),
		string(c.Status),
		toMillis(c.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: container %s", repository.ErrAlreadyExists, c.ID)
		}
		return fmt.Errorf("failed to create container: %w", err)
	}

	return nil
}

// GetByID retrieves a container by ID.
func (r *containerRepository) GetByID(ctx context.Context, id string) (*domain.Container, error) {
	c, err := scanContainer(r.db.QueryRowContext(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get container: %w", err)
	}
	return c, nil
}

// ListByUser returns all containers owned by a user.
func (r *containerRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Container, error) {
	return r.list(ctx, `SELECT `+containerColumns+` FROM containers WHERE user_id = ? ORDER BY created_at`, userID)
}

// ListPendingBefore returns pending containers created before t.
func (r *containerRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.Container, error) {
	return r.list(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE status = ? AND created_at < ? ORDER BY created_at`,
		string(domain.StatusPending), toMillis(t))
}

// SetStatus moves a container between pending and active.
func (r *containerRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE containers SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("failed to set container status: %w", err)
	}
	return affected(result)
}

// Delete deletes a container by ID.
func (r *containerRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("container %s still has files: %w", id, err)
		}
		return false, fmt.Errorf("failed to delete container: %w", err)
	}
	return affected(result)
}

func (r *containerRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Container, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContainer(s scanner) (*domain.Container, error) {
	c := &domain.Container{}
	var (
		privileged int
		commands   string
		status     string
		createdAt  int64
	)

	err := s.Scan(
		&c.ID,
		&c.UserID,
		&c.Tariff.MemoryLimit,
		&c.Tariff.StorageQuota,
		&c.Tariff.FileLimit,
		&c.EnvLabel.Key,
		&c.EnvLabel.Value,
		&c.TypeLabel.Key,
		&c.TypeLabel.Value,
		&privileged,
		&commands,
		&status,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(commands), &c.Commands); err != nil {
		return nil, fmt.Errorf("failed to decode commands: %w", err)
	}
	c.Privileged = privileged != 0
	c.Status = domain.Status(status)
	c.CreatedAt = fromMillis(createdAt)

	return c, nil
}
