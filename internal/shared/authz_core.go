package shared

import "net/http"

// Protected modules.
const (
	ModuleAdmin     = "admin"
	ModuleKaryakars = "karyakars"
	ModuleRoles     = "roles"
	ModuleUsers     = "users"
	ModuleAudit     = "audit"
)

// Actions checked against a module.
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionExport = "export"
)

// RouteGuard wraps handlers with an authorization check for (module, action).
type RouteGuard interface {
	Require(module, action string) func(http.Handler) http.Handler
}

// CoreModules lists the modules managed on the permissions page.
func CoreModules() []string {
	return []string{
		ModuleAdmin,
		ModuleKaryakars,
		ModuleRoles,
		ModuleUsers,
		ModuleAudit,
	}
}

// CoreActions lists the actions managed on the permissions page.
func CoreActions() []string {
	return []string{
		ActionView,
		ActionEdit,
		ActionDelete,
		ActionExport,
	}
}
