package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// SessionStore keeps login sessions under random tokens with a fixed TTL.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

// Create stores sess under a fresh token and returns the completed session.
func (s *SessionStore) Create(ctx context.Context, sess user.Session) (*user.Session, error) {
	now := time.Now().UTC()
	sess.Token = uuid.NewString()
	sess.IssuedAt = now
	sess.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode session")
	}
	if err := s.client.Set(ctx, s.client.Key("session", sess.Token), payload, s.ttl).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to store session")
	}
	return &sess, nil
}

// Get resolves token. Unknown or expired tokens yield ErrCodeUnauthorized.
func (s *SessionStore) Get(ctx context.Context, token string) (*user.Session, error) {
	raw, err := s.client.Get(ctx, s.client.Key("session", token)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeUnauthorized, "session expired or unknown")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to load session")
	}
	var sess user.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode session")
	}
	sess.Token = token
	return &sess, nil
}

// Delete revokes token. Deleting an unknown token is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.client.Key("session", token)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete session")
	}
	return nil
}
