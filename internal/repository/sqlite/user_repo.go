package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tg_id, email, username, first_name, last_name, password_hash,
	is_active, is_admin, lang, registered_at, auth_method`

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var tgID sql.NullInt64
	if user.TelegramID != nil {
		tgID = sql.NullInt64{Int64: *user.TelegramID, Valid: true}
	}
	var email sql.NullString
	if user.Email != nil {
		email = sql.NullString{String: *user.Email, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		tgID,
		email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		boolToInt(user.IsActive),
		boolToInt(user.IsAdmin),
		string(user.Language),
		toMillis(user.RegisteredAt),
		string(user.AuthMethod),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %d", repository.ErrAlreadyExists, user.ID)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByTelegramID retrieves a user by Telegram id.
func (r *userRepository) GetByTelegramID(ctx context.Context, tgID int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE tg_id = ?`, tgID)
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Update applies the non-nil fields of patch.
func (r *userRepository) Update(ctx context.Context, id int64, patch domain.UserPatch) (bool, error) {
	var sets []string
	var args []any

	if patch.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *patch.Username)
	}
	if patch.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, *patch.FirstName)
	}
	if patch.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, *patch.LastName)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*patch.IsActive))
	}
	if patch.IsAdmin != nil {
		sets = append(sets, "is_admin = ?")
		args = append(args, boolToInt(*patch.IsAdmin))
	}
	if patch.Language != nil {
		sets = append(sets, "lang = ?")
		args = append(args, string(*patch.Language))
	}

	// An empty patch still reports whether the user exists.
	if len(sets) == 0 {
		user, err := r.GetByID(ctx, id)
		return user != nil, err
	}

	args = append(args, id)
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update user: %w", err)
	}

	return affected(result)
}

// Delete deletes a user by ID.
func (r *userRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return affected(result)
}

// List returns all users ordered by id.
func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func scanUser(s scanner) (*domain.User, error) {
	user := &domain.User{}
	var (
		tgID              sql.NullInt64
		email             sql.NullString
		isActive, isAdmin int
		lang, method      string
		registeredAt      int64
	)

	err := s.Scan(
		&user.ID,
		&tgID,
		&email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&isActive,
		&isAdmin,
		&lang,
		&registeredAt,
		&method,
	)
	if err != nil {
		return nil, err
	}

	if tgID.Valid {
		v := tgID.Int64
		user.TelegramID = &v
	}
	if email.Valid {
		v := email.String
		user.Email = &v
	}
	user.IsActive = isActive != 0
	user.IsAdmin = isAdmin != 0
	user.Language = domain.Language(lang)
	user.RegisteredAt = fromMillis(registeredAt)
	user.AuthMethod = domain.AuthMethod(method)

	return user, nil
}
