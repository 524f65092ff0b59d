package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/shared"
)

func TestRequestLoggerWritesStatusAndActor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req = req.WithContext(identity.WithPrincipal(req.Context(), &identity.Principal{Handle: "ops"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "/roles", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 5, entry["bytes"])
	assert.Equal(t, "ops", entry["actor"])
}

func TestRequestLoggerLevels(t *testing.T) {
	cases := []struct {
		path   string
		status int
		level  string
	}{
		{"/healthz", http.StatusOK, "DEBUG"},
		{"/static/app.css", http.StatusOK, "DEBUG"},
		{"/users", http.StatusInternalServerError, "ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		handler := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), tc.path)
		assert.Equal(t, tc.level, entry["level"], tc.path)
		assert.Equal(t, identity.Anonymous, entry["actor"], tc.path)
	}
}

type resolverFunc func(next http.Handler) http.Handler

func (f resolverFunc) Middleware(next http.Handler) http.Handler { return f(next) }

func stackWithResolver(t *testing.T, resolver PrincipalMiddleware) http.Handler {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &Config{AppEnv: "test", AppRequestTimeout: time.Second, RateLimitPerMinute: 1000},
		SessionManager: shared.NewSessionManager(client, "sabha_session", "session-secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf-secret"),
		Resolver:       resolver,
	})
	return chi.Chain(stack...).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestResolverRunsUnderRecovererAndTimeout(t *testing.T) {
	var hasDeadline bool
	handler := stackWithResolver(t, resolverFunc(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
			next.ServeHTTP(w, r)
		})
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, hasDeadline, "principal resolution must see the request timeout")
}

func TestResolverPanicIsRecovered(t *testing.T) {
	handler := stackWithResolver(t, resolverFunc(func(http.Handler) http.Handler {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("role store exploded")
		})
	}))
	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
