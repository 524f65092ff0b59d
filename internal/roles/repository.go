package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `role_name, display_name, is_system_role, is_active, status, created_at, updated_at`

// ListActiveRoles returns active roles ordered by name.
func (r *Repository) ListActiveRoles(ctx context.Context) ([]Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_active ORDER BY role_name`)
}

// ListRoles returns roles for the admin listing.
func (r *Repository) ListRoles(ctx context.Context, filters ListFilters) ([]Role, error) {
	if filters.IncludeInactive {
		return r.list(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY role_name`)
	}
	return r.ListActiveRoles(ctx)
}

// GetRole fetches one role by name.
func (r *Repository) GetRole(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_name = $1`, name)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// CreateRole inserts a custom role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO roles (role_name, display_name, is_system_role, is_active, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+roleColumns, role.Name, role.DisplayName, role.IsSystem, role.IsActive, role.Status)
	created, err := scanRole(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, ErrDuplicate
		}
		return Role{}, err
	}
	return created, nil
}

// UpdateDisplayName changes the human label.
func (r *Repository) UpdateDisplayName(ctx context.Context, name, displayName string) (Role, error) {
	row := r.pool.QueryRow(ctx, `UPDATE roles SET display_name = $2, updated_at = NOW()
WHERE role_name = $1 RETURNING `+roleColumns, name, displayName)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// SetActive flips the active flag.
func (r *Repository) SetActive(ctx context.Context, name string, active bool) (Role, error) {
	status := "inactive"
	if active {
		status = "active"
	}
	row := r.pool.QueryRow(ctx, `UPDATE roles SET is_active = $2, status = $3, updated_at = NOW()
WHERE role_name = $1 RETURNING `+roleColumns, name, active, status)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

func (r *Repository) list(ctx context.Context, query string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.Name, &role.DisplayName, &role.IsSystem, &role.IsActive, &role.Status, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}
