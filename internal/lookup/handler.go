package lookup

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabha-admin/sabha/internal/platform/httpx"
)

// Handler exposes option lists as JSON for form widgets.
type Handler struct {
	loader *Loader
	logger *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(loader *Loader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{loader: loader, logger: logger}
}

// MountRoutes registers lookup routes. Callers wrap them with authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{source}", h.options)
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	options, err := h.loader.Options(r.Context(), source)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, options)
	case errors.Is(err, ErrUnknownSource):
		httpx.RespondError(w, fmt.Errorf("%w: lookup source", httpx.ErrNotFound))
	default:
		h.logger.Error("lookup options", slog.String("source", source), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	}
}
