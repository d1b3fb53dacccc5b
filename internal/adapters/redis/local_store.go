package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reachcapital/portal/internal/ports"
)

// DefaultLocalTTL is how long an idle client's local storage survives.
const DefaultLocalTTL = 30 * 24 * time.Hour

var _ ports.LocalStore = (*LocalStore)(nil)

// LocalStore keeps per-client key/value pairs in one hash per client.
type LocalStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewLocalStore creates a local store. ttl <= 0 uses DefaultLocalTTL.
func NewLocalStore(client redis.UniversalClient, ttl time.Duration) *LocalStore {
	if ttl <= 0 {
		ttl = DefaultLocalTTL
	}
	return &LocalStore{client: client, prefix: DefaultPrefix, ttl: ttl}
}

func (s *LocalStore) key(clientID string) string { return clientKey(s.prefix, clientID, "local") }

func (s *LocalStore) Get(ctx context.Context, clientID, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key(clientID), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return v, true, nil
}

func (s *LocalStore) Set(ctx context.Context, clientID, field, value string) error {
	key := s.key(clientID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, value)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Take reads and removes field in one MULTI so two readers can't both see it.
func (s *LocalStore) Take(ctx context.Context, clientID, field string) (string, bool, error) {
	key := s.key(clientID)
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGet(ctx, key, field)
		p.HDel(ctx, key, field)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("redis take: %w", err)
	}
	v, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis take: %w", err)
	}
	return v, true, nil
}

func (s *LocalStore) Clear(ctx context.Context, clientID string) error {
	return s.client.Del(ctx, s.key(clientID)).Err()
}
