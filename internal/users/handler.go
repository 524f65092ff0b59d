package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/lookup"
	"github.com/sabha-admin/sabha/internal/roles"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/view"
)

// OptionLoader supplies select-box options.
type OptionLoader interface {
	Options(ctx context.Context, source string) ([]lookup.Option, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     shared.RouteGuard
	options   OptionLoader
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard shared.RouteGuard, options OptionLoader) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, options: options}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleUsers, shared.ActionView))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleUsers, shared.ActionEdit))
		r.Post("/{id}/roles", h.assignRole)
		r.Post("/{id}/roles/{role}/remove", h.removeRole)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": "Users are temporarily unavailable"}}, http.StatusServiceUnavailable)
		return
	}
	options, err := h.options.Options(r.Context(), string(lookup.SourceRoles))
	if err != nil {
		h.logger.Warn("load role options", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/list.html", map[string]any{"Users": rows, "RoleOptions": options}, http.StatusOK)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	err := h.service.AssignRole(r.Context(), identity.FromContext(r.Context()), userID, r.PostFormValue("role"))
	h.afterMutation(w, r, err, "Role assigned")
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	err := h.service.RemoveRole(r.Context(), identity.FromContext(r.Context()), userID, chi.URLParam(r, "role"))
	h.afterMutation(w, r, err, "Role removed")
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.redirectWithFlash(w, r, "/users", "error", "User not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) afterMutation(w http.ResponseWriter, r *http.Request, err error, success string) {
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/users", "success", success)
	case errors.Is(err, ErrNotFound):
		h.redirectWithFlash(w, r, "/users", "error", "User not found")
	case errors.Is(err, ErrUnknownRole):
		h.redirectWithFlash(w, r, "/users", "error", "Role not found")
	case errors.Is(err, ErrInactiveRole):
		h.redirectWithFlash(w, r, "/users", "error", "Inactive roles cannot be assigned")
	case errors.Is(err, roles.ErrSystemRole):
		h.redirectWithFlash(w, r, "/users", "error", "System roles can only be assigned by a system administrator")
	default:
		h.logger.Error("update user roles", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users", "error", "User roles could not be updated")
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Principal: identity.FromContext(r.Context()), Data: data}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
