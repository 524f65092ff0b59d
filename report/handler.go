package report

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/platform/httpx"
)

// Handler exposes the renderer health check under /report.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates a report handler. A nil client reports the renderer as
// not configured.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	err := h.client.Ping(r.Context())
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, ErrNotConfigured):
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "disabled"})
	default:
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: pdf renderer", httpx.ErrUnavailable))
	}
}
