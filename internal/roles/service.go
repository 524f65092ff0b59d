package roles

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/validation"
)

// MaxDisplayNameLength bounds role labels.
const MaxDisplayNameLength = 100

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filters ListFilters) ([]Role, error)
	GetRole(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateDisplayName(ctx context.Context, name, displayName string) (Role, error)
	SetActive(ctx context.Context, name string, active bool) (Role, error)
}

// CreateInput is the admin form for a new role.
type CreateInput struct {
	Name        string
	DisplayName string
}

// Service handles role administration. Every mutation records a role_change
// event and invalidates authorization caches.
type Service struct {
	repo     RepositoryPort
	recorder audit.Recorder
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder audit.Recorder, notifier Notifier, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, notifier: notifier, logger: logger}
}

// ListRoles returns roles for the admin page.
func (s *Service) ListRoles(ctx context.Context, filters ListFilters) ([]Role, error) {
	return s.repo.ListRoles(ctx, filters)
}

// ValidateName checks the role_name format.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: must start with a letter and contain only a-z, 0-9 or _", ErrInvalidName)
	}
	return nil
}

// Create inserts a custom, active role.
func (s *Service) Create(ctx context.Context, actor *identity.Principal, input CreateInput) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(input.Name))
	if err := ValidateName(name); err != nil {
		return Role{}, err
	}
	label := validation.ValidateText(input.DisplayName, MaxDisplayNameLength, true)
	if !label.Valid {
		return Role{}, label.Err("display_name")
	}
	role, err := s.repo.CreateRole(ctx, Role{
		Name:        name,
		DisplayName: label.Sanitized,
		IsActive:    true,
		Status:      "active",
	})
	if err != nil {
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	s.changed(ctx, actor, role.Name, "created", map[string]string{"display_name": role.DisplayName})
	return role, nil
}

// UpdateDisplayName relabels a role. System roles require a system admin.
func (s *Service) UpdateDisplayName(ctx context.Context, actor *identity.Principal, name, displayName string) (Role, error) {
	current, err := s.repo.GetRole(ctx, name)
	if err != nil {
		return Role{}, err
	}
	if err := authorizeSystemChange(actor, current); err != nil {
		return Role{}, err
	}
	label := validation.ValidateText(displayName, MaxDisplayNameLength, true)
	if !label.Valid {
		return Role{}, label.Err("display_name")
	}
	role, err := s.repo.UpdateDisplayName(ctx, name, label.Sanitized)
	if err != nil {
		return Role{}, fmt.Errorf("roles: rename: %w", err)
	}
	s.changed(ctx, actor, role.Name, "renamed", map[string]string{
		"from": current.DisplayName,
		"to":   role.DisplayName,
	})
	return role, nil
}

// SetActive activates or deactivates a role. Deactivation stops the role from
// granting access within the registry's staleness bound.
func (s *Service) SetActive(ctx context.Context, actor *identity.Principal, name string, active bool) (Role, error) {
	current, err := s.repo.GetRole(ctx, name)
	if err != nil {
		return Role{}, err
	}
	if err := authorizeSystemChange(actor, current); err != nil {
		return Role{}, err
	}
	if current.IsActive == active {
		return current, nil
	}
	role, err := s.repo.SetActive(ctx, name, active)
	if err != nil {
		return Role{}, fmt.Errorf("roles: set active: %w", err)
	}
	change := "deactivated"
	if active {
		change = "activated"
	}
	s.changed(ctx, actor, role.Name, change, map[string]string{"is_active": strconv.FormatBool(active)})
	return role, nil
}

func authorizeSystemChange(actor *identity.Principal, role Role) error {
	if role.IsSystem && !actor.HasRole(SystemAdminRole) {
		return ErrSystemRole
	}
	return nil
}

func (s *Service) changed(ctx context.Context, actor *identity.Principal, role, change string, md map[string]string) {
	s.recorder.Record(audit.RoleChange(actor.ActorHandle(), role, change, md))
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, "role:"+role); err != nil {
		s.logger.Warn("publish role invalidation", slog.Any("error", err), slog.String("role", role))
	}
}
