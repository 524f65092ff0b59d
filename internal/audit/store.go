package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineParams carries the SQL filters for timeline reads.
type TimelineParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Types      []string
	Actor      pgtype.Text
	Subject    pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// PGStore persists security events in PostgreSQL. It exposes append and read
// operations only.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const insertEvent = `INSERT INTO security_events (id, event_type, actor, subject, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Append inserts the event.
func (s *PGStore) Append(ctx context.Context, event Event) error {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("audit: marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertEvent, event.ID, string(event.Type), event.Actor, event.Subject, meta, event.Timestamp)
	return err
}

const timelineFilter = `
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND (cardinality($3::text[]) = 0 OR event_type = ANY($3))
  AND ($4::text IS NULL OR actor = $4)
  AND ($5::text IS NULL OR subject ILIKE '%' || $5 || '%')`

// TimelineWindow returns one page of events, newest first.
func (s *PGStore) TimelineWindow(ctx context.Context, arg TimelineParams) ([]Event, error) {
	query := `SELECT id, event_type, actor, subject, metadata, occurred_at FROM security_events` +
		timelineFilter + ` ORDER BY occurred_at DESC, id DESC OFFSET $6 LIMIT $7`
	rows, err := s.pool.Query(ctx, query, arg.FromAt, arg.ToAt, typesArg(arg.Types), arg.Actor, arg.Subject, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// TimelineAll returns every event matching the filters, newest first.
func (s *PGStore) TimelineAll(ctx context.Context, arg TimelineParams) ([]Event, error) {
	query := `SELECT id, event_type, actor, subject, metadata, occurred_at FROM security_events` +
		timelineFilter + ` ORDER BY occurred_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, arg.FromAt, arg.ToAt, typesArg(arg.Types), arg.Actor, arg.Subject)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func typesArg(types []string) []string {
	if types == nil {
		return []string{}
	}
	return types
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var (
			event Event
			typ   string
			meta  []byte
			at    pgtype.Timestamptz
		)
		if err := rows.Scan(&event.ID, &typ, &event.Actor, &event.Subject, &meta, &at); err != nil {
			return nil, err
		}
		event.Type = EventType(typ)
		if at.Valid {
			event.Timestamp = at.Time
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &event.Metadata); err != nil {
				return nil, fmt.Errorf("audit: decode metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
