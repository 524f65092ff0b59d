// Package audithttp menyajikan timeline security event beserta ekspor CSV dan
// PDF. Otorisasi dilakukan oleh guard pada route.
package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/platform/httpx"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/internal/view"
)

// TimelineService membaca timeline security event.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Exporter menulis hasil ekspor timeline.
type Exporter interface {
	WriteCSV(rows []audit.TimelineRow) ([]byte, error)
	RenderPDF(ctx context.Context, vm audit.ViewModel) ([]byte, error)
}

// Handler menangani halaman timeline dan endpoint ekspor.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	exporter  Exporter
	templates *view.Engine
	guard     shared.RouteGuard
	recorder  audit.Recorder
	now       func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, exporter Exporter, guard shared.RouteGuard, recorder audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Handler{
		logger:    logger,
		service:   service,
		exporter:  exporter,
		templates: templates,
		guard:     guard,
		recorder:  recorder,
		now:       time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.serverError(w, "load audit timeline", err)
		return
	}

	data := view.TemplateData{
		Title:       "Security Events",
		CurrentPath: r.URL.Path,
		Query:       r.URL.Query(),
		Principal:   identity.FromContext(r.Context()),
		Data:        audit.NewViewModel(filters, result),
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		data.Flash = sess.PopFlash()
	}
	if err := h.templates.Render(w, "pages/audit/timeline.html", data); err != nil {
		h.serverError(w, "render audit timeline", err)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	rows, filters, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	body, err := h.exporter.WriteCSV(rows)
	if err != nil {
		h.serverError(w, "encode csv", err)
		return
	}
	h.attachment(w, "text/csv; charset=utf-8", filename(filters, "csv"), body)
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	rows, filters, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	result := audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: len(rows)}}
	body, err := h.exporter.RenderPDF(r.Context(), audit.NewViewModel(filters, result))
	if errors.Is(err, audit.ErrPDFUnavailable) {
		httpx.RespondError(w, fmt.Errorf("%w: PDF export belum tersedia", httpx.ErrNotImplemented))
		return
	}
	if err != nil {
		h.serverError(w, "render pdf", err)
		return
	}
	h.attachment(w, "application/pdf", filename(filters, "pdf"), body)
}

// exportRows memuat seluruh baris untuk ekspor. ok bernilai false bila respons
// sudah ditulis.
func (h *Handler) exportRows(w http.ResponseWriter, r *http.Request) ([]audit.TimelineRow, audit.TimelineFilters, bool) {
	if h.exporter == nil || h.service == nil {
		httpx.RespondError(w, fmt.Errorf("%w: export", httpx.ErrNotImplemented))
		return nil, audit.TimelineFilters{}, false
	}
	filters, ok := h.filters(w, r)
	if !ok {
		return nil, filters, false
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.serverError(w, "export audit timeline", err)
		return nil, filters, false
	}
	return rows, filters, true
}

// filters mem-parse query; filter yang ditolak dicatat sebagai
// validation_failure dan dijawab 400.
func (h *Handler) filters(w http.ResponseWriter, r *http.Request) (audit.TimelineFilters, bool) {
	filters, err := parseFilters(r.URL.Query(), h.now())
	if err == nil {
		return filters, true
	}
	var ferr filterError
	if !errors.As(err, &ferr) {
		h.serverError(w, "validate filters", err)
		return filters, false
	}
	actor := identity.FromContext(r.Context()).ActorHandle()
	h.recorder.Record(audit.ValidationFailure(actor, ferr.field, "audit_filter", "invalid filter", len(r.URL.Query().Get(ferr.field))))
	http.Error(w, fmt.Sprintf("%s: %s", http.StatusText(http.StatusBadRequest), ferr.field), http.StatusBadRequest)
	return filters, false
}

func (h *Handler) attachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write export", slog.String("file", name), slog.Any("error", err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// filename memberi nama berkas ekspor sesuai rentang tanggal inklusif.
func filename(filters audit.TimelineFilters, ext string) string {
	return fmt.Sprintf("security-events-%s-to-%s.%s",
		filters.From.Format(dateLayout), filters.To.Add(-24*time.Hour).Format(dateLayout), ext)
}
