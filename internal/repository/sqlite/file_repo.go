package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// fileRepository implements repository.FileRepository for SQLite.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new SQLite file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

const fileColumns = `id, container_id, user_id, name, size, mime_type, content_hash, status, created_at`

// Create creates a new file record.
func (r *fileRepository) Create(ctx context.Context, f *domain.File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.ContainerID,
		f.UserID,
		f.Name,
		f.Size,
		f.MimeType,
		f.ContentHash,
		string(f.Status),
		toMillis(f.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: file %s", repository.ErrAlreadyExists, f.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: container %s", domain.ErrContainerNotFound, f.ContainerID)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// GetByID retrieves a file by ID.
func (r *fileRepository) GetByID(ctx context.Context, id string) (*domain.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListByContainer returns all files of a container.
func (r *fileRepository) ListByContainer(ctx context.Context, containerID string) ([]*domain.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE container_id = ? ORDER BY created_at`, containerID)
}

// ListByUser returns all files owned by a user.
func (r *fileRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY created_at`, userID)
}

// ListPendingBefore returns pending files created before t.
func (r *fileRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.File, error) {
	return r.list(ctx,
		`SELECT `+fileColumns+` FROM files WHERE status = ? AND created_at < ? ORDER BY created_at`,
		string(domain.StatusPending), toMillis(t))
}

// SetStatus moves a file between pending and active.
func (r *fileRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE files SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("failed to set file status: %w", err)
	}
	return affected(result)
}

// UsageByContainer sums size and count over the container's files.
func (r *fileRepository) UsageByContainer(ctx context.Context, containerID string) (int64, int64, error) {
	var bytes, count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0), COUNT(*) FROM files WHERE container_id = ?`, containerID,
	).Scan(&bytes, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return bytes, count, nil
}

// Delete deletes a file by ID.
func (r *fileRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	return affected(result)
}

func (r *fileRepository) list(ctx context.Context, query string, args ...any) ([]*domain.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var out []*domain.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFile(s scanner) (*domain.File, error) {
	f := &domain.File{}
	var status string
	var createdAt int64

	err := s.Scan(
		&f.ID,
		&f.ContainerID,
		&f.UserID,
		&f.Name,
		&f.Size,
		&f.MimeType,
		&f.ContentHash,
		&status,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = domain.Status(status)
	f.CreatedAt = fromMillis(createdAt)
	return f, nil
}
