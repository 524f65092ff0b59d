package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type stubExporter struct {
	csv []byte
}

func (s stubExporter) WriteCSV(rows []audit.TimelineRow) ([]byte, error) {
	if s.csv != nil {
		return s.csv, nil
	}
	return audit.NewExporter(nil).WriteCSV(rows)
}

func (s stubExporter) RenderPDF(ctx context.Context, vm audit.ViewModel) ([]byte, error) {
	return nil, audit.ErrPDFUnavailable
}

type stubGuard struct {
	allowed map[string]bool
}

func (g stubGuard) Require(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.allowed[module+":"+action] {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type memRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memRecorder) Record(e audit.Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func newAuditRouter(t *testing.T, service *stubTimelineService, exporter Exporter, allowed map[string]bool, rec audit.Recorder) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, service, templates, exporter, stubGuard{allowed: allowed}, rec)
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &identity.Principal{Handle: "7", Roles: []string{"auditor"}}
			next.ServeHTTP(w, req.WithContext(identity.WithPrincipal(req.Context(), p)))
		})
	})
	handler.MountRoutes(r)
	return r
}

func serve(router http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestTimelineRequiresPermission(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, stubExporter{}, nil, nil)
	assert.Equal(t, http.StatusForbidden, serve(router, "/audit").Code)
}

func TestTimelineRendersRows(t *testing.T) {
	rows := []audit.TimelineRow{{
		At:       time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
		Type:     audit.EventUnauthorizedAccess,
		Actor:    "auditor-42",
		Subject:  "karyakars:delete",
		Metadata: map[string]string{"module": "karyakars", "action": "delete"},
	}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(t, service, stubExporter{}, map[string]bool{"audit:view": true}, nil)

	rr := serve(router, "/audit?from=2024-03-01&to=2024-03-15&type=unauthorized_access")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "auditor-42")
	assert.Contains(t, rr.Body.String(), "/audit/export/csv?from=2024-03-01&amp;to=2024-03-15&amp;type=unauthorized_access")
	assert.Equal(t, "2024-03-01", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), service.lastFilters.To)
	assert.Equal(t, []audit.EventType{audit.EventUnauthorizedAccess}, service.lastFilters.Types)
}

func TestTimelineRejectsUnknownType(t *testing.T) {
	rec := &memRecorder{}
	router := newAuditRouter(t, &stubTimelineService{}, stubExporter{}, map[string]bool{"audit:view": true}, rec)

	rr := serve(router, "/audit?type=drop_table")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.EventValidationFailure, rec.events[0].Type)
	assert.Equal(t, "type", rec.events[0].Subject)
	assert.Equal(t, "7", rec.events[0].Actor)
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "auditor"}}}
	router := newAuditRouter(t, service, stubExporter{csv: []byte("actor")}, map[string]bool{"audit:view": true, "audit:export": true}, nil)

	rr := serve(router, "/audit/export/csv?from=2024-03-01&to=2024-03-05")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, `attachment; filename="security-events-2024-03-01-to-2024-03-05.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "actor", rr.Body.String())
}

func TestExportRequiresExportAction(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, stubExporter{}, map[string]bool{"audit:view": true}, nil)
	assert.Equal(t, http.StatusForbidden, serve(router, "/audit/export/csv").Code)
}

func TestPDFNotImplemented(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, stubExporter{}, map[string]bool{"audit:export": true}, nil)
	rr := serve(router, "/audit/export/pdf")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestExportRateLimitRecordsEvent(t *testing.T) {
	rec := &memRecorder{}
	router := newAuditRouter(t, &stubTimelineService{}, stubExporter{csv: []byte("x")}, map[string]bool{"audit:export": true}, rec)
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimit; i++ {
		last = serve(router, "/audit/export/csv")
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.EventRateLimitExceeded, rec.events[0].Type)
	assert.Equal(t, "7", rec.events[0].Actor)
}
