package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheTTL bounds how long a deactivated role keeps granting access.
	DefaultCacheTTL = 5 * time.Second
	// MaxCacheTTL caps any configured staleness window.
	MaxCacheTTL = 30 * time.Second

	defaultLoadTimeout = 3 * time.Second
)

// Source reads active roles from the store.
type Source interface {
	ListActiveRoles(ctx context.Context) ([]Role, error)
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the wall clock used for staleness checks.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLoadTimeout bounds a single store read.
func WithLoadTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.loadTimeout = d
		}
	}
}

// Registry serves the active role set from a snapshot refreshed at most every
// TTL. A role deactivated in the store stops being reported active within TTL,
// or immediately after Invalidate.
type Registry struct {
	source      Source
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	group      singleflight.Group
	generation atomic.Uint64
	snap       atomic.Pointer[snapshot]
}

type snapshot struct {
	roles      []Role
	byName     map[string]Role
	loadedAt   time.Time
	generation uint64
}

// NewRegistry constructs a Registry. ttl <= 0 disables caching; ttl above
// MaxCacheTTL is clamped.
func NewRegistry(source Source, ttl time.Duration, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl > MaxCacheTTL {
		ttl = MaxCacheTTL
	}
	r := &Registry{
		source:      source,
		ttl:         ttl,
		loadTimeout: defaultLoadTimeout,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL reports the effective staleness bound.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// LoadActiveRoles returns the active roles ordered by name. When the store
// cannot be read it returns an empty set and an error wrapping
// ErrStoreUnavailable.
func (r *Registry) LoadActiveRoles(ctx context.Context) ([]Role, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return []Role{}, err
	}
	out := make([]Role, len(snap.roles))
	copy(out, snap.roles)
	return out, nil
}

// DisplayNameFor returns the display name of a loaded active role, or name
// itself when the role is unknown or inactive. It never touches the store.
func (r *Registry) DisplayNameFor(name string) string {
	snap := r.snap.Load()
	if snap == nil {
		return name
	}
	if role, ok := snap.byName[name]; ok {
		return role.Label()
	}
	return name
}

// IsActive reports whether name is an active role.
func (r *Registry) IsActive(ctx context.Context, name string) (bool, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.byName[name]
	return ok, nil
}

// FilterActive keeps the names that are active roles, preserving order.
func (r *Registry) FilterActive(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return []string{}, nil
	}
	snap, err := r.current(ctx)
	if err != nil {
		return []string{}, err
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := snap.byName[name]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// RoleNames enumerates active role names in order.
func (r *Registry) RoleNames(ctx context.Context) ([]string, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return []string{}, err
	}
	names := make([]string, len(snap.roles))
	for i, role := range snap.roles {
		names[i] = role.Name
	}
	return names, nil
}

// Invalidate marks the snapshot stale; the next read reloads. The previous
// snapshot keeps serving DisplayNameFor until then.
func (r *Registry) Invalidate() {
	r.generation.Add(1)
}

// Refresh forces a reload.
func (r *Registry) Refresh(ctx context.Context) error {
	r.Invalidate()
	_, err := r.current(ctx)
	return err
}

func (r *Registry) current(ctx context.Context) (*snapshot, error) {
	gen := r.generation.Load()
	if snap := r.snap.Load(); snap != nil && r.fresh(snap, gen) {
		return snap, nil
	}

	key := "active:" + strconv.FormatUint(gen, 10)
	resultChan := r.group.DoChan(key, func() (interface{}, error) {
		return r.load(ctx, gen)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("roles: load active: %w", ctx.Err())
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot), nil
	}
}

func (r *Registry) fresh(snap *snapshot, gen uint64) bool {
	if r.ttl <= 0 || snap.generation != gen {
		return false
	}
	return r.now().Sub(snap.loadedAt) < r.ttl
}

func (r *Registry) load(ctx context.Context, gen uint64) (*snapshot, error) {
	// Shared by every waiter, so one caller going away must not abort it.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
	defer cancel()

	roles, err := r.source.ListActiveRoles(loadCtx)
	if err != nil {
		r.logger.Warn("role registry load failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	snap := &snapshot{
		roles:      make([]Role, 0, len(roles)),
		byName:     make(map[string]Role, len(roles)),
		loadedAt:   r.now(),
		generation: gen,
	}
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		snap.roles = append(snap.roles, role)
		snap.byName[role.Name] = role
	}
	sortRoles(snap.roles)
	if r.generation.Load() == gen {
		r.snap.Store(snap)
	}
	return snap, nil
}

func sortRoles(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Name < roles[j].Name
	})
}
