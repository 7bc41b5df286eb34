package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// fileRepository implements repository.FileRepository.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new PostgreSQL file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

const fileSelect = `
	SELECT id, container_id, user_id, name, size, mime_type, content_hash, status, created_at
	FROM files
`

// Create creates a new file record.
func (r *fileRepository) Create(ctx context.Context, f *domain.File) error {
	query := `
		INSERT INTO files (id, container_id, user_id, name, size, mime_type, content_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		f.ID,
		f.ContainerID,
		f.UserID,
		f.Name,
		f.Size,
		f.MimeType,
		f.ContentHash,
		string(f.Status),
		f.CreatedAt.UTC(),
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
	f, err := scanFile(r.db.Pool.QueryRow(ctx, fileSelect+` WHERE id = $1`, id))
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
	return r.list(ctx, fileSelect+` WHERE container_id = $1 ORDER BY created_at`, containerID)
}

// ListByUser returns all files owned by a user.
func (r *fileRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.File, error) {
	return r.list(ctx, fileSelect+` WHERE user_id = $1 ORDER BY created_at`, userID)
}

// ListPendingBefore returns pending files created before t.
func (r *fileRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.File, error) {
	return r.list(ctx, fileSelect+` WHERE status = $1 AND created_at < $2 ORDER BY created_at`,
		string(domain.StatusPending), t.UTC())
}

// SetStatus moves a file between pending and active.
func (r *fileRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE files SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("failed to set file status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UsageByContainer sums size and count over the container's files.
func (r *fileRepository) UsageByContainer(ctx context.Context, containerID string) (int64, int64, error) {
	var bytes, count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(size), 0)::bigint, COUNT(*) FROM files WHERE container_id = $1`, containerID,
	).Scan(&bytes, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return bytes, count, nil
}

// Delete deletes a file by ID.
func (r *fileRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepository) list(ctx context.Context, query string, args ...any) ([]*domain.File, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
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

func scanFile(row pgx.Row) (*domain.File, error) {
	f := &domain.File{}
	var status string

	err := row.Scan(
		&f.ID,
		&f.ContainerID,
		&f.UserID,
		&f.Name,
		&f.Size,
		&f.MimeType,
		&f.ContentHash,
		&status,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = domain.Status(status)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}
