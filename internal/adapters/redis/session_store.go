// Package redis provides Redis-based adapters for the portal.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// DefaultPrefix namespaces every key the portal writes.
const DefaultPrefix = "portal:"

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStore is a Redis-based session store for production use.
// Sessions expire with their ExpiresAt; each client scope points at its
// current session through a binding key.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, DefaultPrefix)
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *SessionStore) sessionKey(id string) string { return s.prefix + "session:" + id }

func (s *SessionStore) bindingKey(clientID string) string {
	return clientKey(s.prefix, clientID, "session")
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	return s.client.Set(ctx, s.sessionKey(sess.ID), data, ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	// Redis TTL has second granularity; trust ExpiresAt.
	if sess.Expired(time.Now()) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, s.sessionKey(id)).Err()
}

// Current returns the session ID bound to clientID, or "" when none is bound.
func (s *SessionStore) Current(ctx context.Context, clientID string) (string, error) {
	if clientID == "" {
		return "", nil
	}
	id, err := s.client.Get(ctx, s.bindingKey(clientID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get binding: %w", err)
	}
	return id, nil
}

// Bind points clientID at sessionID for ttl.
func (s *SessionStore) Bind(ctx context.Context, clientID, sessionID string, ttl time.Duration) error {
	if clientID == "" || sessionID == "" {
		return errors.New("client ID and session ID are required")
	}
	if ttl <= 0 {
		return errors.New("binding ttl must be positive")
	}
	return s.client.Set(ctx, s.bindingKey(clientID), sessionID, ttl).Err()
}

// Unbind removes the client's session binding.
func (s *SessionStore) Unbind(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	return s.client.Del(ctx, s.bindingKey(clientID)).Err()
}

func clientKey(prefix, clientID, suffix string) string {
	// Hash tag keeps a client's keys in one cluster slot for MULTI.
	return prefix + "client:{" + clientID + "}:" + suffix
}

// ErrNotFound is returned when a session or attempt is missing or expired.
var ErrNotFound = ports.ErrNotFound
