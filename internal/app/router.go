package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/audit"
	audithttp "github.com/sabha-admin/sabha/internal/audit/http"
	"github.com/sabha-admin/sabha/internal/auth"
	"github.com/sabha-admin/sabha/internal/gate"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/lookup"
	"github.com/sabha-admin/sabha/internal/observability"
	"github.com/sabha-admin/sabha/internal/platform/httpx"
	"github.com/sabha-admin/sabha/internal/rbac"
	"github.com/sabha-admin/sabha/internal/roles"
	"github.com/sabha-admin/sabha/internal/settings"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/users"
	"github.com/sabha-admin/sabha/internal/view"
	"github.com/sabha-admin/sabha/jobs"
	"github.com/sabha-admin/sabha/report"
	"github.com/sabha-admin/sabha/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          shared.RouteGuard
	Resolver       PrincipalMiddleware
	Recorder       audit.Recorder
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.PermissionsHandler
	SettingsHandler    *settings.Handler
	AuditHandler       *audithttp.Handler
	LookupHandler      *lookup.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Sabha defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Resolver:       params.Resolver,
		Recorder:       params.Recorder,
	}) {
		r.Use(mw)
	}

	r.Use(requestLogger(params.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		principal := identity.FromContext(r.Context())
		if !principal.Authenticated() {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:       "Sabha",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			Principal:   principal,
			Data: map[string]any{
				"Roles": principal.Roles,
			},
		}
		if err := params.Templates.Render(w, "pages/dashboard.html", data); err != nil {
			params.Logger.Error("render dashboard", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.LookupHandler != nil {
		r.Route("/lookup", func(r chi.Router) {
			r.Use(requireAuthenticated)
			params.LookupHandler.MountRoutes(r)
		})
	}
	if params.ReportHandler != nil {
		r.Route("/report", func(r chi.Router) {
			r.Use(params.Guard.Require(shared.ModuleAdmin, shared.ActionView))
			params.ReportHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Guard.Require(shared.ModuleAdmin, shared.ActionView))
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// DenialPage renders the access denied page for gate denials.
func DenialPage(templates *view.Engine, csrf *shared.CSRFManager, logger *slog.Logger) gate.DenialRenderer {
	return func(w http.ResponseWriter, r *http.Request, out gate.Outcome) {
		sess := shared.SessionFromContext(r.Context())
		token := ""
		if csrf != nil && sess != nil {
			token, _ = csrf.EnsureToken(r.Context(), sess)
		}
		data := view.TemplateData{
			Title:       "Access denied",
			CSRFToken:   token,
			CurrentPath: r.URL.Path,
			Principal:   identity.FromContext(r.Context()),
			Data: map[string]any{
				"Module": out.Module,
				"Action": out.Action,
				"Reason": out.Reason,
			},
		}
		if err := templates.RenderStatus(w, http.StatusForbidden, "pages/denied.html", data); err != nil {
			logger.Error("render denied", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		}
	}
}

// requireAuthenticated rejects anonymous JSON callers.
func requireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity.FromContext(r.Context()).Authenticated() {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
