package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const foreignKeyViolation = "23503"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, name, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// RolesFor returns the role names assigned to the user.
func (r *Repository) RolesFor(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.role_name
FROM user_roles ur
JOIN roles r ON r.role_name = ur.role_name
WHERE ur.user_id = $1
ORDER BY r.role_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: roles for %d: %w", userID, err)
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Assignments returns role names keyed by user id.
func (r *Repository) Assignments(ctx context.Context) (map[int64][]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, role_name FROM user_roles ORDER BY user_id, role_name`)
	if err != nil {
		return nil, fmt.Errorf("users: assignments: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]string)
	for rows.Next() {
		var (
			userID int64
			role   string
		)
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], role)
	}
	return out, rows.Err()
}

// AssignRole links a role to a user. added is false when it already existed.
func (r *Repository) AssignRole(ctx context.Context, userID int64, role string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			if pgErr.ConstraintName == "user_roles_user_id_fkey" {
				return false, ErrNotFound
			}
			return false, ErrUnknownRole
		}
		return false, fmt.Errorf("users: assign role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveRole unlinks a role. removed is false when it was not assigned.
func (r *Repository) RemoveRole(ctx context.Context, userID int64, role string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_name = $2`, userID, role)
	if err != nil {
		return false, fmt.Errorf("users: remove role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
