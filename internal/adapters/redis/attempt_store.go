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

var _ ports.LoginAttemptStore = (*AttemptStore)(nil)

// AttemptStore keeps login attempts between starting and completing a sign-in.
// Attempts are single use: Consume reads and deletes in one GETDEL.
type AttemptStore struct {
	client redis.UniversalClient
	prefix string
}

// NewAttemptStore creates an attempt store using DefaultPrefix.
func NewAttemptStore(client redis.UniversalClient) *AttemptStore {
	return &AttemptStore{client: client, prefix: DefaultPrefix + "attempt:"}
}

func (s *AttemptStore) Put(ctx context.Context, a domainauth.LoginAttempt, ttl time.Duration) error {
	if a.ID == "" {
		return errors.New("attempt ID cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("attempt ttl must be positive")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	return s.client.Set(ctx, s.prefix+a.ID, data, ttl).Err()
}

func (s *AttemptStore) Consume(ctx context.Context, id string) (domainauth.LoginAttempt, error) {
	if id == "" {
		return domainauth.LoginAttempt{}, ErrNotFound
	}
	data, err := s.client.GetDel(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.LoginAttempt{}, ErrNotFound
		}
		return domainauth.LoginAttempt{}, fmt.Errorf("redis getdel: %w", err)
	}
	var a domainauth.LoginAttempt
	if err := json.Unmarshal(data, &a); err != nil {
		return domainauth.LoginAttempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return a, nil
}
