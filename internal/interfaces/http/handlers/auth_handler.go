package handlers

import (
	"context"
	"net/http"

	"github.com/turtacn/TransitLedger/internal/application/auth"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// AuthService is the subset of auth.Service used over HTTP.
type AuthService interface {
	Login(ctx context.Context, in auth.LoginInput, meta domain.RequestMeta) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string, meta domain.RequestMeta) error
	ChangePassword(ctx context.Context, userID string, in auth.ChangePasswordInput, meta domain.RequestMeta) error
}

// AuthHandler handles login, logout and password changes.
type AuthHandler struct {
	auth   AuthService
	logger logging.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, logger logging.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decode(r, &in); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.auth.Login(r.Context(), in, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.BearerToken(r), middleware.RequestMeta(r)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/v1/auth/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.ContextGetUserID(r.Context())
	if userID == "" {
		writeAppError(w, h.logger, errors.Unauthorized("authentification requise"))
		return
	}
	var in auth.ChangePasswordInput
	if err := decode(r, &in); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), userID, in, middleware.RequestMeta(r)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
