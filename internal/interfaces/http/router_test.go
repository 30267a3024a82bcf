package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TransitLedger/internal/application/auth"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/handlers"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(_ context.Context, token string) (*user.Session, error) {
	if token == "good" {
		return &user.Session{UserID: "u-1", Email: "ops@transit.ml"}, nil
	}
	return nil, errors.Unauthorized("unknown token")
}

type stubAuthService struct{}

func (stubAuthService) Login(_ context.Context, in auth.LoginInput, _ domain.RequestMeta) (*auth.LoginResult, error) {
	return &auth.LoginResult{Token: "good"}, nil
}

func (stubAuthService) Logout(context.Context, string, domain.RequestMeta) error { return nil }

func (stubAuthService) ChangePassword(context.Context, string, auth.ChangePasswordInput, domain.RequestMeta) error {
	return nil
}

func newTestRouter() http.Handler {
	logger := logging.NewNopLogger()
	return NewRouter(RouterConfig{
		ContractHandler:  handlers.NewContractHandler(nil, nil, logger),
		MissionHandler:   handlers.NewMissionHandler(nil, nil, logger),
		PaymentHandler:   handlers.NewPaymentHandler(nil, logger),
		DemurrageHandler: handlers.NewDemurrageHandler(domain.DefaultPolicy(), logger),
		AuthHandler:      handlers.NewAuthHandler(stubAuthService{}, logger),
		HealthHandler:    handlers.NewHealthHandler("test", logger),
		AuthMiddleware:   middleware.NewAuthMiddleware(stubAuthenticator{}, logger, LoginPath),
		Logger:           logger,
	})
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouter_HealthEndpoints_NoAuth(t *testing.T) {
	router := newTestRouter()

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/readyz", "", "").Code)
}

func TestNewRouter_APIv1_RequiresAuth(t *testing.T) {
	router := newTestRouter()
	body := `{"date_arrivee":"2025-01-06","date_dechargement":"2025-01-13"}`

	w := do(router, http.MethodPost, "/api/v1/demurrage/compute", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/demurrage/compute", "bad", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/demurrage/compute", "good", body)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"jours_facturables":5`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestNewRouter_LoginIsPublic(t *testing.T) {
	router := newTestRouter()

	w := do(router, http.MethodPost, "/api/v1/auth/login", "", `{"email":"ops@transit.ml","password":"Camion2025"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "logout needs a session")
}

func TestNewRouter_RoutesRegistered(t *testing.T) {
	router := newTestRouter()

	var got []string
	require.NoError(t, chi.Walk(router.(chi.Routes), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		got = append(got, method+" "+strings.TrimSuffix(route, "/"))
		return nil
	}))
	sort.Strings(got)

	want := []string{
		"DELETE /api/v1/contracts/{id}",
		"GET /api/v1/cautions/{id}",
		"GET /api/v1/contracts/{id}",
		"GET /api/v1/contracts/{id}/events",
		"GET /api/v1/missions/{id}",
		"GET /api/v1/missions/{id}/demurrage",
		"GET /api/v1/missions/{id}/events",
		"GET /api/v1/payments/{id}",
		"GET /healthz",
		"GET /readyz",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"POST /api/v1/auth/password",
		"POST /api/v1/cautions/{id}/consume",
		"POST /api/v1/cautions/{id}/not-refunded",
		"POST /api/v1/cautions/{id}/refund",
		"POST /api/v1/contracts",
		"POST /api/v1/contracts/{id}/cancel",
		"POST /api/v1/contracts/{id}/caution/block",
		"POST /api/v1/contracts/{id}/caution/release",
		"POST /api/v1/contracts/{id}/export",
		"POST /api/v1/demurrage/compute",
		"POST /api/v1/missions/{id}/arrival",
		"POST /api/v1/missions/{id}/cancel",
		"POST /api/v1/missions/{id}/terminate",
		"POST /api/v1/missions/{id}/unloading",
		"POST /api/v1/payments/{id}/validate",
		"PUT /api/v1/contracts/{id}",
	}
	for _, route := range want {
		assert.Contains(t, got, route)
	}
}

func TestNewRouter_NilHandlers_NoPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		router := NewRouter(RouterConfig{})
		w := do(router, http.MethodGet, "/api/v1/contracts/c-1", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNewRouter_RateLimited(t *testing.T) {
	logger := logging.NewNopLogger()
	router := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test", logger),
		RateLimiter:   middleware.NewTokenBucketLimiter(0.001, 1),
		Logger:        logger,
	})

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/missions/m-1", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(router, http.MethodGet, "/api/v1/missions/m-1", "", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz", "", "").Code, "probes are never limited")
}
