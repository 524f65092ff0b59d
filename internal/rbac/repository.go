package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sabha-admin/sabha/internal/platform/db"
)

// Repository persists permission grants in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GrantsForRole returns the grants held by role.
func (r *Repository) GrantsForRole(ctx context.Context, role string) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_name, module, action FROM permission_grants
WHERE role_name = $1 ORDER BY module, action`, role)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ListGrants returns every grant.
func (r *Repository) ListGrants(ctx context.Context) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_name, module, action FROM permission_grants
ORDER BY role_name, module, action`)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ReplaceRoleGrants swaps the role's grant set in one transaction so readers
// never observe a partial update.
func (r *Repository) ReplaceRoleGrants(ctx context.Context, role string, grants []Grant) (added, removed int, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		added, removed = 0, 0
		if _, err := tx.Exec(ctx, `SELECT 1 FROM roles WHERE role_name = $1 FOR UPDATE`, role); err != nil {
			return fmt.Errorf("rbac: lock role: %w", err)
		}
		keep := make([]string, 0, len(grants))
		for _, g := range grants {
			keep = append(keep, g.Key())
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permission_grants
WHERE role_name = $1 AND NOT (module || ':' || action = ANY($2::text[]))`, role, keep)
		if err != nil {
			return fmt.Errorf("rbac: delete grants: %w", err)
		}
		removed = int(tag.RowsAffected())
		for _, g := range grants {
			tag, err := tx.Exec(ctx, `INSERT INTO permission_grants (role_name, module, action)
VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, role, g.Module, g.Action)
			if err != nil {
				return fmt.Errorf("rbac: insert grant: %w", err)
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return added, removed, nil
}

func scanGrants(rows pgx.Rows) ([]Grant, error) {
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.RoleName, &g.Module, &g.Action); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
