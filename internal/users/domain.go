package users

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrUnknownRole indicates an assignment referencing a missing role.
	ErrUnknownRole = errors.New("users: unknown role")
	// ErrInactiveRole indicates an assignment of a deactivated role.
	ErrInactiveRole = errors.New("users: role is inactive")
	// ErrInvalidHandle indicates a handle that is not a user id.
	ErrInvalidHandle = errors.New("users: invalid handle")
)

// User represents a user account for management.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleLabel pairs a role name with its display name.
type RoleLabel struct {
	Name  string
	Label string
}

// Row is one line of the users page.
type Row struct {
	User
	Roles []RoleLabel
}
