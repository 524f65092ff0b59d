package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/roles"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/view"
)

// PermissionsHandler manages the role x permission matrix.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     shared.RouteGuard
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard shared.RouteGuard) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleRoles, shared.ActionView))
		r.Get("/", h.showMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleRoles, shared.ActionEdit))
		r.Post("/{role}", h.updateRole)
	})
}

type formErrors map[string]string

func (h *PermissionsHandler) showMatrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.service.Matrix(r.Context())
	if err != nil {
		h.logger.Error("permission matrix", slog.Any("error", err))
		h.render(w, r, "pages/permissions/list.html", map[string]any{"Errors": formErrors{"general": "Permissions are temporarily unavailable"}}, http.StatusServiceUnavailable)
		return
	}
	h.render(w, r, "pages/permissions/list.html", map[string]any{"Matrix": matrix}, http.StatusOK)
}

func (h *PermissionsHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "error", "Invalid form submission")
		return
	}
	var grants []Grant
	for _, key := range r.PostForm["grant"] {
		g, ok := ParseGrantKey(role, key)
		if !ok {
			h.redirectWithFlash(w, r, "error", "Unknown permission")
			return
		}
		grants = append(grants, g)
	}
	err := h.service.SetRoleGrants(r.Context(), identity.FromContext(r.Context()), role, grants)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "success", "Permissions updated")
	case errors.Is(err, roles.ErrNotFound):
		h.redirectWithFlash(w, r, "error", "Role not found")
	case errors.Is(err, roles.ErrSystemRole):
		h.redirectWithFlash(w, r, "error", "System roles can only be changed by a system administrator")
	case errors.Is(err, ErrUnknownPermission):
		h.redirectWithFlash(w, r, "error", "Unknown permission")
	default:
		h.logger.Error("set role grants", slog.Any("error", err), slog.String("role", role))
		h.redirectWithFlash(w, r, "error", "Permissions could not be updated")
	}
}

func (h *PermissionsHandler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Permissions", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Principal: identity.FromContext(r.Context()), Data: data}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *PermissionsHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/permissions", http.StatusSeeOther)
}
