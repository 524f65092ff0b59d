package roles

import (
	"errors"
	"time"
)

// SystemAdminRole may change system roles.
const SystemAdminRole = "system_admin"

// Type distinguishes built-in roles from administrator-created ones.
type Type string

const (
	TypeSystem Type = "system"
	TypeCustom Type = "custom"
)

var (
	// ErrStoreUnavailable reports that roles could not be read from the store.
	// Callers on the authorization path treat it as deny.
	ErrStoreUnavailable = errors.New("roles: store unavailable")
	// ErrNotFound indicates the role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrDuplicate indicates a role with the same name exists.
	ErrDuplicate = errors.New("roles: duplicate role name")
	// ErrSystemRole is returned when a non system admin changes a system role.
	ErrSystemRole = errors.New("roles: system role is protected")
	// ErrInvalidName indicates a malformed role name.
	ErrInvalidName = errors.New("roles: invalid role name")
)

// Role is a named, independently activatable bundle of grants. Name and
// IsSystem never change after creation.
type Role struct {
	Name        string
	DisplayName string
	IsSystem    bool
	IsActive    bool
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Type reports whether the role is built in.
func (r Role) Type() Type {
	if r.IsSystem {
		return TypeSystem
	}
	return TypeCustom
}

// Label returns the display name, falling back to the role name.
func (r Role) Label() string {
	if r.DisplayName == "" {
		return r.Name
	}
	return r.DisplayName
}

// ListFilters narrows the admin listing.
type ListFilters struct {
	IncludeInactive bool
}
