package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sabha-admin/sabha/internal/identity"
)

const grantCacheSize = 512

// RoleRegistry resolves which of a principal's roles are currently active.
type RoleRegistry interface {
	FilterActive(ctx context.Context, names []string) ([]string, error)
}

// GrantStore reads the grants held by one role.
type GrantStore interface {
	GrantsForRole(ctx context.Context, role string) ([]Grant, error)
}

type grantSet map[string]struct{}

// Evaluator answers whether a principal may perform an action on a module.
// It grants only on an exact (module, action) match held by an active role
// and never writes audit records.
type Evaluator struct {
	registry RoleRegistry
	store    GrantStore
	logger   *slog.Logger

	cache      *expirable.LRU[string, grantSet]
	generation atomic.Uint64
}

// NewEvaluator constructs an Evaluator. Grant sets are cached for ttl; ttl <= 0
// reads the store on every evaluation.
func NewEvaluator(registry RoleRegistry, store GrantStore, ttl time.Duration, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{registry: registry, store: store, logger: logger}
	if ttl > 0 {
		e.cache = expirable.NewLRU[string, grantSet](grantCacheSize, nil, ttl)
	}
	return e
}

// Evaluate returns Allow iff at least one of the principal's active roles
// holds an explicit grant for exactly (module, action). Every failure path
// returns Deny; the error explains why.
func (e *Evaluator) Evaluate(ctx context.Context, principal *identity.Principal, module, action string) (Decision, error) {
	if principal == nil {
		return Deny, nil
	}
	if principal.RolesUnavailable {
		return Deny, fmt.Errorf("%w: role assignments not loaded", ErrStoreUnavailable)
	}
	if len(principal.Roles) == 0 {
		return Deny, nil
	}
	module, action = normalize(module), normalize(action)
	if module == "" || action == "" {
		return Deny, nil
	}

	active, err := e.registry.FilterActive(ctx, principal.Roles)
	if err != nil {
		return Deny, fmt.Errorf("rbac: resolve roles: %w", err)
	}

	key := permissionKey(module, action)
	for _, role := range active {
		set, err := e.grantsFor(ctx, role)
		if err != nil {
			return Deny, err
		}
		if _, ok := set[key]; ok {
			return Allow, nil
		}
	}
	return Deny, nil
}

// Invalidate drops cached grant sets.
func (e *Evaluator) Invalidate() {
	e.generation.Add(1)
	if e.cache != nil {
		e.cache.Purge()
	}
}

func (e *Evaluator) grantsFor(ctx context.Context, role string) (grantSet, error) {
	if e.cache != nil {
		if set, ok := e.cache.Get(role); ok {
			return set, nil
		}
	}
	gen := e.generation.Load()
	grants, err := e.store.GrantsForRole(ctx, role)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rbac: load grants: %w", ctxErr)
		}
		e.logger.Warn("grant lookup failed", slog.Any("error", err), slog.String("role", role))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	set := make(grantSet, len(grants))
	for _, g := range grants {
		set[g.Key()] = struct{}{}
	}
	if e.cache != nil && e.generation.Load() == gen {
		e.cache.Add(role, set)
	}
	return set, nil
}
