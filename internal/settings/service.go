package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/sabha-admin/sabha/internal/identity"
)

// Store persists settings records.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Upsert(ctx context.Context, key, value, actor string) (Record, error)
}

// Service exposes the sign-in toggle. The toggle fails open: a missing row
// reports enabled, and an unreachable store serves the last snapshot or
// enabled when nothing was loaded yet.
type Service struct {
	store    Store
	logger   *slog.Logger
	snapshot atomic.Pointer[Setting]
}

// NewService builds Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// GoogleSignInEnabled reads the toggle from the store.
func (s *Service) GoogleSignInEnabled(ctx context.Context) bool {
	setting, _ := s.read(ctx)
	return setting.GoogleSignInEnabled
}

// Enabled returns the last loaded toggle value without touching the store.
// Before the first Refresh it reports enabled.
func (s *Service) Enabled() bool {
	if current := s.snapshot.Load(); current != nil {
		return current.GoogleSignInEnabled
	}
	return true
}

// Refresh re-reads the toggle and replaces the in-memory snapshot. A store
// error keeps the previous snapshot and returns the fail-open value with the
// error.
func (s *Service) Refresh(ctx context.Context) (Setting, error) {
	setting, err := s.read(ctx)
	if err != nil {
		return setting, err
	}
	s.snapshot.Store(&setting)
	return setting, nil
}

// SetGoogleSignIn stores the toggle with a version bump.
func (s *Service) SetGoogleSignIn(ctx context.Context, actor *identity.Principal, enabled bool) (Setting, error) {
	rec, err := s.store.Upsert(ctx, KeyGoogleSignIn, strconv.FormatBool(enabled), actor.ActorHandle())
	if err != nil {
		return Setting{}, err
	}
	setting := toSetting(rec)
	s.snapshot.Store(&setting)
	s.logger.Info("google sign-in toggled",
		slog.Bool("enabled", setting.GoogleSignInEnabled),
		slog.Int64("version", setting.Version),
		slog.String("actor", actor.ActorHandle()),
	)
	return setting, nil
}

func (s *Service) read(ctx context.Context) (Setting, error) {
	rec, err := s.store.Get(ctx, KeyGoogleSignIn)
	switch {
	case errors.Is(err, ErrNotFound):
		return Setting{GoogleSignInEnabled: true}, nil
	case err != nil:
		s.logger.Warn("read sign-in toggle, serving last snapshot", slog.Any("error", err))
		if current := s.snapshot.Load(); current != nil {
			return *current, fmt.Errorf("settings: read: %w", err)
		}
		return Setting{GoogleSignInEnabled: true}, fmt.Errorf("settings: read: %w", err)
	}
	return toSetting(rec), nil
}

func toSetting(rec Record) Setting {
	enabled, err := strconv.ParseBool(rec.Value)
	if err != nil {
		enabled = true
	}
	return Setting{
		GoogleSignInEnabled: enabled,
		Version:             rec.Version,
		UpdatedBy:           rec.UpdatedBy,
		UpdatedAt:           rec.UpdatedAt,
	}
}
