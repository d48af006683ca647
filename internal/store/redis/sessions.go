package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pushgate/internal/store"
)

// SessionStore implements store.SessionStore on Redis. Sessions are
// stored as JSON values keyed by refresh token, with the key TTL set
// to the session expiry so Redis evicts stale sessions on its own.
type SessionStore struct {
	client *redis.Client
}

// New creates a Redis-backed session store.
func New(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(token string) string {
	return "session:" + token
}

// CreateSession persists a new session.
func (s *SessionStore) CreateSession(ctx context.Context, sess *store.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	return s.client.Set(ctx, sessionKey(sess.Token), data, ttl).Err()
}

// GetSession retrieves a session by refresh token.
func (s *SessionStore) GetSession(ctx context.Context, token string) (*store.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess store.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session by refresh token.
func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// DeleteExpiredSessions is a no-op: Redis key TTLs handle expiry.
func (s *SessionStore) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}
