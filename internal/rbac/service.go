package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/roles"
	"github.com/sabha-admin/sabha/internal/shared"
)

// RepositoryPort defines grant persistence.
type RepositoryPort interface {
	ListGrants(ctx context.Context) ([]Grant, error)
	ReplaceRoleGrants(ctx context.Context, role string, grants []Grant) (added, removed int, err error)
}

// RoleDirectory reads roles for the matrix and for system-role checks.
type RoleDirectory interface {
	ListRoles(ctx context.Context, filters roles.ListFilters) ([]roles.Role, error)
	GetRole(ctx context.Context, name string) (roles.Role, error)
}

// Service orchestrates grant administration.
type Service struct {
	repo     RepositoryPort
	roles    RoleDirectory
	recorder audit.Recorder
	notifier roles.Notifier
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, directory RoleDirectory, recorder audit.Recorder, notifier roles.Notifier, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: directory, recorder: recorder, notifier: notifier, logger: logger}
}

// ListGrants returns every grant.
func (s *Service) ListGrants(ctx context.Context) ([]Grant, error) {
	return s.repo.ListGrants(ctx)
}

// Matrix returns every role against the managed modules and actions.
func (s *Service) Matrix(ctx context.Context) (Matrix, error) {
	all, err := s.roles.ListRoles(ctx, roles.ListFilters{IncludeInactive: true})
	if err != nil {
		return Matrix{}, fmt.Errorf("rbac: matrix roles: %w", err)
	}
	grants, err := s.repo.ListGrants(ctx)
	if err != nil {
		return Matrix{}, fmt.Errorf("rbac: matrix grants: %w", err)
	}
	byRole := make(map[string]map[string]bool, len(all))
	for _, g := range grants {
		if byRole[g.RoleName] == nil {
			byRole[g.RoleName] = make(map[string]bool)
		}
		byRole[g.RoleName][g.Key()] = true
	}
	m := Matrix{Modules: shared.CoreModules(), Actions: shared.CoreActions()}
	for _, role := range all {
		granted := byRole[role.Name]
		if granted == nil {
			granted = map[string]bool{}
		}
		m.Rows = append(m.Rows, MatrixRow{Role: role, Granted: granted})
	}
	return m, nil
}

// SetRoleGrants replaces the grants of role atomically. Grants on system roles
// require a system admin.
func (s *Service) SetRoleGrants(ctx context.Context, actor *identity.Principal, role string, grants []Grant) error {
	current, err := s.roles.GetRole(ctx, role)
	if err != nil {
		return err
	}
	if current.IsSystem && !actor.HasRole(roles.SystemAdminRole) {
		return roles.ErrSystemRole
	}
	cleaned, err := cleanGrants(role, grants)
	if err != nil {
		return err
	}
	added, removed, err := s.repo.ReplaceRoleGrants(ctx, role, cleaned)
	if err != nil {
		return fmt.Errorf("rbac: set grants: %w", err)
	}
	if added == 0 && removed == 0 {
		return nil
	}
	s.recorder.Record(audit.RoleChange(actor.ActorHandle(), role, "grants_updated", map[string]string{
		"grants_added":   strconv.Itoa(added),
		"grants_removed": strconv.Itoa(removed),
	}))
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, "grants:"+role); err != nil {
			s.logger.Warn("publish grant invalidation", slog.Any("error", err), slog.String("role", role))
		}
	}
	return nil
}

func cleanGrants(role string, grants []Grant) ([]Grant, error) {
	modules, actions := shared.CoreModules(), shared.CoreActions()
	seen := make(map[string]struct{}, len(grants))
	out := make([]Grant, 0, len(grants))
	for _, g := range grants {
		g = Grant{RoleName: role, Module: normalize(g.Module), Action: normalize(g.Action)}
		if !slices.Contains(modules, g.Module) || !slices.Contains(actions, g.Action) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, g.Key())
		}
		if _, dup := seen[g.Key()]; dup {
			continue
		}
		seen[g.Key()] = struct{}{}
		out = append(out, g)
	}
	return out, nil
}
