package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/validation"
	"github.com/sabha-admin/sabha/internal/view"
)

// SessionStore records server-side session metadata.
type SessionStore interface {
	RegisterSession(ctx context.Context, id, handle string, expiresAt time.Time, ip, ua string) error
	RemoveSession(ctx context.Context, id string) error
}

// SignInToggle reports whether the Google sign-in option is offered.
type SignInToggle interface {
	Enabled() bool
}

// HandlerConfig carries optional login settings.
type HandlerConfig struct {
	// GoogleSignInURL starts the external OAuth flow. Empty disables the redirect.
	GoogleSignInURL string
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	provider       IdentityProvider
	store          SessionStore
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	inputs         *validation.Guard
	recorder       audit.Recorder
	toggle         SignInToggle
	cfg            HandlerConfig
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, inputs *validation.Guard, recorder audit.Recorder, toggle SignInToggle, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	if inputs == nil {
		inputs = validation.NewGuard(recorder, nil)
	}
	return &Handler{
		logger:         logger,
		provider:       service,
		store:          service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		inputs:         inputs,
		recorder:       recorder,
		toggle:         toggle,
		cfg:            cfg,
	}
}

// WithProvider swaps the identity provider, keeping session bookkeeping.
func (h *Handler) WithProvider(provider IdentityProvider) *Handler {
	h.provider = provider
	return h
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/google", h.googleSignIn)
}

const invalidCredentialsMessage = "Invalid email or password"

type loginForm struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form         loginForm
	Errors       map[string]string
	GoogleSignIn bool
	Next         string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{Form: loginForm{}, Next: SafeNext(r.URL.Query().Get("next"))}
	h.renderLogin(w, r, data, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	next := SafeNext(r.PostFormValue("next"))
	fieldErrs := h.inputs.Struct(identity.Anonymous, form)
	if _, ok := fieldErrs["Email"]; !ok {
		if res := h.inputs.Email(identity.Anonymous, "email", form.Email, "Email"); !res.Valid {
			fieldErrs["Email"] = res.Error
		}
	}

	if len(fieldErrs) == 0 {
		ident, err := h.provider.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			reason := FailureReason(err)
			if reason == "provider_error" {
				h.logger.Error("authenticate", slog.Any("error", err))
			}
			h.recorder.Record(audit.NewEvent(audit.EventFailedLogin, identity.Anonymous, "auth:login", map[string]string{
				"email_length": strconv.Itoa(utf8.RuneCountInString(form.Email)),
				"reason":       reason,
			}))
			fieldErrs["general"] = invalidCredentialsMessage
		} else {
			h.completeLogin(w, r, sess, ident, next)
			return
		}
	}

	data := loginPageData{Form: loginForm{Email: form.Email}, Errors: fieldErrs, Next: next}
	h.renderLogin(w, r, data, http.StatusBadRequest)
}

func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, sess *shared.Session, ident Identity, next string) {
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessionManager.Renew(sess)
	sess.SetUser(ident.Handle)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.store.RegisterSession(r.Context(), sess.ID, ident.Handle, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.recorder.Record(audit.NewEvent(audit.EventSuccessfulLogin, ident.Handle, "auth:login", nil))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if handle := sess.User(); handle != "" {
			h.recorder.Record(audit.NewEvent(audit.EventLogout, handle, "auth:logout", nil))
		}
		if err := h.store.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) googleSignIn(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled() {
		http.NotFound(w, r)
		return
	}
	if h.cfg.GoogleSignInURL == "" {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Google sign-in is not configured"})
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.cfg.GoogleSignInURL, http.StatusFound)
}

func (h *Handler) googleEnabled() bool {
	return h.toggle == nil || h.toggle.Enabled()
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data.GoogleSignIn = h.googleEnabled()
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// SafeNext keeps post-login redirects on this site.
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	if strings.ContainsAny(next, "\r\n") {
		return "/"
	}
	return next
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
