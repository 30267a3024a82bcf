package user

import (
	"context"
	"time"
)

// Session is the server-side state behind an opaque bearer token.
type Session struct {
	Token        string    `json:"-"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	EntrepriseID string    `json:"entreprise_id,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStore issues, resolves and revokes sessions. Get returns an
// unauthorized AppError for unknown or expired tokens.
type SessionStore interface {
	Create(ctx context.Context, s Session) (*Session, error)
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}
