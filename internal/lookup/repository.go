package lookup

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source queries never interpolate caller input.
var sourceQueries = map[Source]string{
	SourceRoles: `SELECT role_name, display_name FROM roles WHERE is_active ORDER BY role_name`,
	SourceUsers: `SELECT id::text, COALESCE(NULLIF(name, ''), email) FROM users WHERE is_active ORDER BY email`,
}

// Repository reads option lists from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Options runs the fixed query for source.
func (r *Repository) Options(ctx context.Context, source Source) ([]Option, error) {
	query, ok := sourceQueries[source]
	if !ok {
		return nil, ErrUnknownSource
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lookup: query %s: %w", source, err)
	}
	defer rows.Close()
	options := make([]Option, 0)
	for rows.Next() {
		var opt Option
		if err := rows.Scan(&opt.Value, &opt.Label); err != nil {
			return nil, fmt.Errorf("lookup: scan %s: %w", source, err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup: rows %s: %w", source, err)
	}
	return options, nil
}
