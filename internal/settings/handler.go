package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/view"
)

// Handler serves the settings page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     shared.RouteGuard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard shared.RouteGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ModuleAdmin, shared.ActionEdit))
		r.Get("/", h.show)
		r.Post("/", h.update)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	setting, err := h.service.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("refresh settings", slog.Any("error", err))
	}
	h.render(w, r, map[string]any{"Setting": setting}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/settings", "error", "Invalid form submission")
		return
	}
	enabled := r.PostFormValue("google_signin_enabled") == "true"
	if _, err := h.service.SetGoogleSignIn(r.Context(), identity.FromContext(r.Context()), enabled); err != nil {
		h.logger.Error("update settings", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/settings", "error", "Settings could not be saved")
		return
	}
	h.redirectWithFlash(w, r, "/settings", "success", "Settings saved")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Settings", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Principal: identity.FromContext(r.Context()), Data: data}
	if err := h.templates.RenderStatus(w, status, "pages/settings/index.html", viewData); err != nil {
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
