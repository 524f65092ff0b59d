package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/validation"
	"github.com/sabha-admin/sabha/internal/view"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     shared.RouteGuard
	inputs    *validation.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard shared.RouteGuard, inputs *validation.Guard) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, inputs: inputs}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleRoles, shared.ActionView))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleRoles, shared.ActionEdit))
		r.Get("/new", h.showCreateRoleForm)
		r.Post("/", h.createRole)
		r.Post("/{name}/display-name", h.renameRole)
		r.Post("/{name}/active", h.toggleRole)
	})
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), ListFilters{IncludeInactive: true})
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", map[string]any{"Errors": formErrors{"general": "Roles are temporarily unavailable"}}, http.StatusServiceUnavailable)
		return
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateRoleForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{"general": "Invalid form submission"}}, http.StatusBadRequest)
		return
	}
	principal := identity.FromContext(r.Context())
	input := CreateInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		DisplayName: r.PostFormValue("display_name"),
	}
	if res := h.inputs.Text(principal.ActorHandle(), "display_name", input.DisplayName, MaxDisplayNameLength, true); !res.Valid {
		h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{"display_name": res.Error}, "Form": input}, http.StatusUnprocessableEntity)
		return
	}
	_, err := h.service.Create(r.Context(), principal, input)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/roles", "success", "Role created")
	case errors.Is(err, ErrInvalidName):
		res := h.inputs.Reject(principal.ActorHandle(), "name", "role_name", "Use lower-case letters, digits and underscores", input.Name)
		h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{"name": res.Error}, "Form": input}, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrDuplicate):
		h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{"name": "A role with this name already exists"}, "Form": input}, http.StatusConflict)
	default:
		h.logger.Error("create role", slog.Any("error", err))
		h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{"general": "Role could not be created"}, "Form": input}, http.StatusInternalServerError)
	}
}

func (h *Handler) renameRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	principal := identity.FromContext(r.Context())
	displayName := r.PostFormValue("display_name")
	if res := h.inputs.Text(principal.ActorHandle(), "display_name", displayName, MaxDisplayNameLength, true); !res.Valid {
		h.redirectWithFlash(w, r, "/roles", "error", res.Error)
		return
	}
	_, err := h.service.UpdateDisplayName(r.Context(), principal, name, displayName)
	h.afterMutation(w, r, err, "Role renamed")
}

func (h *Handler) toggleRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	active := r.PostFormValue("active") == "true"
	_, err := h.service.SetActive(r.Context(), identity.FromContext(r.Context()), name, active)
	message := "Role deactivated"
	if active {
		message = "Role activated"
	}
	h.afterMutation(w, r, err, message)
}

func (h *Handler) afterMutation(w http.ResponseWriter, r *http.Request, err error, success string) {
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/roles", "success", success)
	case errors.Is(err, ErrNotFound):
		h.redirectWithFlash(w, r, "/roles", "error", "Role not found")
	case errors.Is(err, ErrSystemRole):
		h.redirectWithFlash(w, r, "/roles", "error", "System roles can only be changed by a system administrator")
	case errors.Is(err, validation.ErrValidationFailure):
		h.redirectWithFlash(w, r, "/roles", "error", err.Error())
	default:
		h.logger.Error("update role", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/roles", "error", "Role could not be updated")
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Roles", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Principal: identity.FromContext(r.Context()), Data: data}
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
