package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNoRepository dikembalikan bila Service dibuat tanpa repository.
var ErrNoRepository = errors.New("audit: repository not configured")

// Repository menyediakan akses baca ke security_events.
type Repository interface {
	TimelineWindow(ctx context.Context, arg TimelineParams) ([]Event, error)
	TimelineAll(ctx context.Context, arg TimelineParams) ([]Event, error)
}

// Service membaca timeline security event. Penulisan hanya lewat Logger.
type Service struct {
	repo Repository
}

// NewService membuat service audit timeline baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil satu halaman event, terbaru lebih dulu.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, ErrNoRepository
	}
	filters = filters.normalized()
	params := toParams(filters)
	params.OffsetRows, params.LimitRows = filters.window()

	events, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(events) > filters.PageSize
	if hasNext {
		events = events[:filters.PageSize]
	}
	return Result{
		Rows:   toRows(events),
		Paging: newPaging(filters.Page, filters.PageSize, hasNext),
	}, nil
}

// Export mengambil seluruh event yang cocok tanpa paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	events, err := s.repo.TimelineAll(ctx, toParams(filters))
	if err != nil {
		return nil, err
	}
	return toRows(events), nil
}

// toParams membuang tipe event yang tidak dikenal agar tidak sampai ke SQL.
func toParams(filters TimelineFilters) TimelineParams {
	types := make([]string, 0, len(filters.Types))
	for _, t := range filters.Types {
		if t.Valid() {
			types = append(types, string(t))
		}
	}
	return TimelineParams{
		FromAt:  timestamptz(filters.From),
		ToAt:    timestamptz(filters.To),
		Types:   types,
		Actor:   nullableText(filters.Actor),
		Subject: nullableText(filters.Subject),
	}
}

func toRows(events []Event) []TimelineRow {
	rows := make([]TimelineRow, len(events))
	for i, e := range events {
		rows[i] = TimelineRow{At: e.Timestamp, Type: e.Type, Actor: e.Actor, Subject: e.Subject, Metadata: e.Metadata}
	}
	return rows
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func nullableText(value string) pgtype.Text {
	value = strings.TrimSpace(value)
	return pgtype.Text{String: value, Valid: value != ""}
}
