package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const sessionContextKey contextKey = iota

// SessionAuthenticator resolves a bearer token to its session.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*user.Session, error)
}

// AuthMiddleware rejects requests without a valid session token.
type AuthMiddleware struct {
	auth      SessionAuthenticator
	logger    logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates an AuthMiddleware. Requests whose path is in
// skipPaths are passed through unauthenticated.
func NewAuthMiddleware(auth SessionAuthenticator, logger logging.Logger, skipPaths ...string) *AuthMiddleware {
	m := &AuthMiddleware{auth: auth, logger: logger, skipPaths: make(map[string]bool, len(skipPaths))}
	for _, p := range skipPaths {
		m.skipPaths[p] = true
	}
	return m
}

// Handler enforces authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		token := BearerToken(r)
		if token == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}
		sess, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.IsUnauthorized(err) {
				m.logger.Error("session lookup failed", logging.String("path", r.URL.Path), logging.Err(err))
			}
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// ContextWithSession stores sess in ctx.
func ContextWithSession(ctx context.Context, sess *user.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// ContextGetSession returns the session stored by the auth middleware.
func ContextGetSession(ctx context.Context) *user.Session {
	sess, _ := ctx.Value(sessionContextKey).(*user.Session)
	return sess
}

// ContextGetUserID returns the authenticated user id, or "".
func ContextGetUserID(ctx context.Context) string {
	if sess := ContextGetSession(ctx); sess != nil {
		return sess.UserID
	}
	return ""
}

// RequestMeta describes who sent r and from where, for audit records.
func RequestMeta(r *http.Request) domain.RequestMeta {
	meta := domain.RequestMeta{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
	if sess := ContextGetSession(r.Context()); sess != nil {
		meta.Actor = sess.Email
	}
	return meta
}

// clientIP strips the port chi's RealIP middleware leaves on RemoteAddr
// when no proxy header was present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="transitledger"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": string(errors.ErrCodeUnauthorized), "message": message},
	})
}

// RequestID copies chi's request id into the logging context so that
// services and publishers can tag their output with it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id != "" {
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(logging.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
