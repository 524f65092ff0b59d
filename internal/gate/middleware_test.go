package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
)

func newRouter(g *Gate, principal *identity.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				req = req.WithContext(identity.WithPrincipal(req.Context(), principal))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.With(g.Require("karyakars", "view")).Get("/karyakars", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("list"))
	})
	r.With(g.Require("karyakars", "delete")).Post("/karyakars/1/delete", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestRequireRedirectsAnonymousToLogin(t *testing.T) {
	g := New(&stubEvaluator{}, nil, Config{}, nil)
	rr := httptest.NewRecorder()
	newRouter(g, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/karyakars?page=2", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login?next=%2Fkaryakars%3Fpage%3D2", rr.Header().Get("Location"))
}

func TestRequireGrantsAndDenies(t *testing.T) {
	rec := &sink{}
	ev := &stubEvaluator{allow: map[string]bool{"karyakars:view": true}}
	var rendered Outcome
	g := New(ev, rec, Config{}, nil, WithDenialRenderer(func(w http.ResponseWriter, r *http.Request, out Outcome) {
		rendered = out
		w.WriteHeader(http.StatusForbidden)
	}))
	router := newRouter(g, member)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/karyakars", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "list", rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/karyakars/1/delete", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "delete", rendered.Action)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventUnauthorizedAccess, events[0].Type)
	assert.Equal(t, "karyakars:delete", events[0].Subject)
}
