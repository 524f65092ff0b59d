package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/roles"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	RolesFor(ctx context.Context, userID int64) ([]string, error)
	Assignments(ctx context.Context) (map[int64][]string, error)
	AssignRole(ctx context.Context, userID int64, role string) (bool, error)
	RemoveRole(ctx context.Context, userID int64, role string) (bool, error)
}

// RoleDirectory resolves roles for assignment checks.
type RoleDirectory interface {
	GetRole(ctx context.Context, name string) (roles.Role, error)
}

// RoleLabeler maps role names to display names.
type RoleLabeler interface {
	DisplayNameFor(name string) string
}

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	directory RoleDirectory
	labels    RoleLabeler
	recorder  audit.Recorder
	notifier  roles.Notifier
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, directory RoleDirectory, labels RoleLabeler, recorder audit.Recorder, notifier roles.Notifier, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, labels: labels, recorder: recorder, notifier: notifier, logger: logger}
}

// ListUsers returns all users with their role display names.
func (s *Service) ListUsers(ctx context.Context) ([]Row, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.Assignments(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(users))
	for _, u := range users {
		row := Row{User: u}
		for _, name := range assignments[u.ID] {
			row.Roles = append(row.Roles, RoleLabel{Name: name, Label: s.label(name)})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RolesFor returns the role names assigned to the principal handle.
func (s *Service) RolesFor(ctx context.Context, handle string) ([]string, error) {
	userID, err := ParseHandle(handle)
	if err != nil {
		return nil, err
	}
	return s.repo.RolesFor(ctx, userID)
}

// AssignRole grants an active role to a user. Assigning a system role
// requires a system admin.
func (s *Service) AssignRole(ctx context.Context, actor *identity.Principal, userID int64, role string) error {
	target, err := s.resolveRole(ctx, actor, role)
	if err != nil {
		return err
	}
	if !target.IsActive {
		return fmt.Errorf("%w: %s", ErrInactiveRole, target.Name)
	}
	added, err := s.repo.AssignRole(ctx, userID, target.Name)
	if err != nil || !added {
		return err
	}
	s.changed(ctx, actor, userID, target.Name, "assigned")
	return nil
}

// RemoveRole revokes a role from a user. Inactive roles can still be removed.
func (s *Service) RemoveRole(ctx context.Context, actor *identity.Principal, userID int64, role string) error {
	target, err := s.resolveRole(ctx, actor, role)
	if err != nil {
		return err
	}
	removed, err := s.repo.RemoveRole(ctx, userID, target.Name)
	if err != nil || !removed {
		return err
	}
	s.changed(ctx, actor, userID, target.Name, "unassigned")
	return nil
}

func (s *Service) resolveRole(ctx context.Context, actor *identity.Principal, name string) (roles.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	role, err := s.directory.GetRole(ctx, name)
	if errors.Is(err, roles.ErrNotFound) {
		return roles.Role{}, ErrUnknownRole
	}
	if err != nil {
		return roles.Role{}, fmt.Errorf("users: resolve role: %w", err)
	}
	if role.IsSystem && !actor.HasRole(roles.SystemAdminRole) {
		return roles.Role{}, roles.ErrSystemRole
	}
	return role, nil
}

func (s *Service) changed(ctx context.Context, actor *identity.Principal, userID int64, role, change string) {
	user := strconv.FormatInt(userID, 10)
	s.recorder.Record(audit.RoleChange(actor.ActorHandle(), role, change, map[string]string{"user": user}))
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, "user:"+user); err != nil {
		s.logger.Warn("publish assignment invalidation", slog.Any("error", err), slog.String("user", user))
	}
}

func (s *Service) label(name string) string {
	if s.labels == nil {
		return name
	}
	return s.labels.DisplayNameFor(name)
}

// ParseHandle converts a principal handle to a user id.
func ParseHandle(handle string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(handle), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return id, nil
}
