package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for app_settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the record stored under key.
func (r *Repository) Get(ctx context.Context, key string) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT key, value, version, updated_by, updated_at FROM app_settings WHERE key = $1`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return rec, nil
}

const upsertSetting = `INSERT INTO app_settings (key, value, version, updated_by, updated_at)
VALUES ($1, $2, 1, $3, now())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
    version = app_settings.version + 1,
    updated_by = EXCLUDED.updated_by,
    updated_at = now()
RETURNING key, value, version, updated_by, updated_at`

// Upsert writes value atomically and bumps the version.
func (r *Repository) Upsert(ctx context.Context, key, value, actor string) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, upsertSetting, key, value, actor))
	if err != nil {
		return Record{}, fmt.Errorf("settings: upsert %s: %w", key, err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec       Record
		updatedBy pgtype.Text
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&rec.Key, &rec.Value, &rec.Version, &updatedBy, &updatedAt); err != nil {
		return Record{}, err
	}
	rec.UpdatedBy = updatedBy.String
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	return rec, nil
}
