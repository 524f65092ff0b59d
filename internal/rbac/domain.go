package rbac

import (
	"errors"
	"strings"

	"github.com/sabha-admin/sabha/internal/roles"
)

// Decision is the two-valued outcome of an evaluation.
type Decision int

const (
	// Deny is the zero value so an unset decision never grants access.
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

var (
	// ErrStoreUnavailable is shared with the role registry so callers match one
	// sentinel for every storage failure on the authorization path.
	ErrStoreUnavailable = roles.ErrStoreUnavailable
	// ErrUnknownPermission indicates a grant outside the managed modules/actions.
	ErrUnknownPermission = errors.New("rbac: unknown module or action")
)

// Grant allows RoleName to perform Action on Module. Absence means deny.
type Grant struct {
	RoleName string
	Module   string
	Action   string
}

// Key identifies the (module, action) pair.
func (g Grant) Key() string {
	return permissionKey(g.Module, g.Action)
}

// ParseGrantKey splits "module:action" as produced by Key.
func ParseGrantKey(role, key string) (Grant, bool) {
	module, action, ok := strings.Cut(key, ":")
	if !ok {
		return Grant{}, false
	}
	module, action = normalize(module), normalize(action)
	if module == "" || action == "" {
		return Grant{}, false
	}
	return Grant{RoleName: role, Module: module, Action: action}, true
}

func permissionKey(module, action string) string {
	return normalize(module) + ":" + normalize(action)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatrixRow is one role line on the permissions page.
type MatrixRow struct {
	Role    roles.Role
	Granted map[string]bool
}

// Matrix lays grants out as roles by module/action.
type Matrix struct {
	Modules []string
	Actions []string
	Rows    []MatrixRow
}
