package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/platform/httpx"
	"github.com/sabha-admin/sabha/internal/shared"
)

// Ekspor dibatasi per pengguna karena membaca seluruh rentang tanpa paging.
const (
	rateLimit  = 10
	rateWindow = time.Minute
)

// MountRoutes mendaftarkan timeline (audit:view) dan ekspor (audit:export).
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require(shared.ModuleAudit, shared.ActionView)).Get("/audit", h.handleTimeline)
	r.Route("/audit/export", func(ex chi.Router) {
		ex.Use(h.guard.Require(shared.ModuleAudit, shared.ActionExport))
		ex.Use(httprate.Limit(rateLimit, rateWindow,
			httprate.WithKeyFuncs(exportKey),
			httprate.WithLimitHandler(h.exportLimited),
		))
		ex.Get("/csv", h.handleExport)
		ex.Get("/pdf", h.handlePDF)
	})
}

func (h *Handler) exportLimited(w http.ResponseWriter, r *http.Request) {
	actor := identity.FromContext(r.Context()).ActorHandle()
	h.recorder.Record(audit.NewEvent(audit.EventRateLimitExceeded, actor, r.URL.Path,
		map[string]string{"limit": "audit_export", "window": rateWindow.String()}))
	httpx.RespondError(w, httpx.ErrRateLimited)
}

// exportKey membatasi per pengguna; permintaan anonim jatuh ke alamat IP.
func exportKey(r *http.Request) (string, error) {
	if p := identity.FromContext(r.Context()); p.Authenticated() {
		return "user:" + p.Handle, nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
