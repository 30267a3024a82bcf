package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type stubAuthenticator struct {
	sessions map[string]*user.Session
	err      error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*user.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	return nil, apperrors.Unauthorized("unknown token")
}

// ─────────────────────────────────────────────────────────────────────────────
// Auth
// ─────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware(t *testing.T) {
	auth := stubAuthenticator{sessions: map[string]*user.Session{
		"tok-1": {UserID: "u-1", Email: "ops@transit.ml"},
	}}
	var seen *user.Session
	var meta struct{ actor, ip string }
	h := NewAuthMiddleware(auth, logging.NewNopLogger(), "/api/v1/auth/login").Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = ContextGetSession(r.Context())
			m := RequestMeta(r)
			meta.actor, meta.ip = m.Actor, m.IPAddress
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid token", "/api/v1/contracts", "Bearer tok-1", http.StatusNoContent},
		{"lowercase scheme", "/api/v1/contracts", "bearer tok-1", http.StatusNoContent},
		{"missing header", "/api/v1/contracts", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/contracts", "Basic dXNlcg==", http.StatusUnauthorized},
		{"unknown token", "/api/v1/contracts", "Bearer nope", http.StatusUnauthorized},
		{"skipped path", "/api/v1/auth/login", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			r.RemoteAddr = "10.0.0.5:51234"
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeUnauthorized))
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
	r.RemoteAddr = "10.0.0.5:51234"
	r.Header.Set("Authorization", "Bearer tok-1")
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.NotNil(t, seen)
	assert.Equal(t, "u-1", seen.UserID)
	assert.Equal(t, "ops@transit.ml", meta.actor)
	assert.Equal(t, "10.0.0.5", meta.ip)
}

func TestAuthMiddleware_StoreFailureLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewAuthMiddleware(stubAuthenticator{err: errors.New("redis down")}, logging.NewLoggerFromCore(core)).Handler(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/missions/m-1", nil)
	r.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("session lookup failed").Len())
}

func TestRequestMeta_Anonymous(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::1]:8080"
	r.Header.Set("User-Agent", "transitctl")
	m := RequestMeta(r)
	assert.Empty(t, m.Actor)
	assert.Equal(t, "::1", m.IPAddress)
	assert.Equal(t, "transitctl", m.UserAgent)
}

func TestRequestID_PropagatesToLoggingContext(t *testing.T) {
	var got string
	h := chimw.RequestID(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logging.RequestIDFromContext(r.Context())
	})))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "req-42", got)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging
// ─────────────────────────────────────────────────────────────────────────────

func TestRequestLogging_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := logging.NewLoggerFromCore(core)

	status := http.StatusOK
	h := RequestLogging(logger, DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	for _, s := range []int{http.StatusOK, http.StatusConflict, http.StatusInternalServerError} {
		status = s
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/contracts", nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.All()
	require.Len(t, entries, 3, "probe paths are skipped")
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(409), entries[1].ContextMap()["status"])
}

// ─────────────────────────────────────────────────────────────────────────────
// Rate limiting
// ─────────────────────────────────────────────────────────────────────────────

func TestTokenBucketLimiter(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	l := NewTokenBucketLimiter(1, 2)
	l.now = func() time.Time { return now }

	ok, info := l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 1, info.Remaining)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok, "burst exhausted")
	ok, _ = l.Allow("b")
	assert.True(t, ok, "buckets are per key")

	now = now.Add(time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok, "one token refilled")

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.Sweep(time.Minute))
}

func TestRateLimit_Middleware(t *testing.T) {
	h := RateLimit(NewTokenBucketLimiter(0.001, 1), "/healthz")(okHandler())

	call := func(path string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = "10.0.0.8:4000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("/api/v1/missions/m-1").Code)
	w := call("/api/v1/missions/m-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeTooManyRequests))
	assert.Equal(t, http.StatusOK, call("/healthz").Code)
}

func TestMetrics_NilSafe(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics(nil))
	r.Get("/x/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/1", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}
