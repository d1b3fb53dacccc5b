package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

var _ ports.EventBus = (*EventBus)(nil)

// EventBus publishes session events on a per-client pub/sub channel and
// hands out per-client revisions from an INCR counter.
type EventBus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewEventBus creates an event bus. logger may be nil.
func NewEventBus(client redis.UniversalClient, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{client: client, prefix: DefaultPrefix, logger: logger.With("component", "event_bus")}
}

func (b *EventBus) revKey(clientID string) string  { return clientKey(b.prefix, clientID, "rev") }
func (b *EventBus) channel(clientID string) string { return clientKey(b.prefix, clientID, "events") }

func (b *EventBus) NextRevision(ctx context.Context, clientID string) (uint64, error) {
	n, err := b.client.Incr(ctx, b.revKey(clientID)).Uint64()
	if err != nil {
		return 0, fmt.Errorf("redis incr revision: %w", err)
	}
	return n, nil
}

func (b *EventBus) Revision(ctx context.Context, clientID string) (uint64, error) {
	n, err := b.client.Get(ctx, b.revKey(clientID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get revision: %w", err)
	}
	return n, nil
}

func (b *EventBus) Publish(ctx context.Context, clientID string, ev domainauth.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(clientID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers events for clientID to fn on a dedicated goroutine until
// ctx is done or the returned Unsubscribe is called.
func (b *EventBus) Subscribe(
	ctx context.Context,
	clientID string,
	fn func(domainauth.SessionEvent),
) (ports.Unsubscribe, error) {
	ps := b.client.Subscribe(ctx, b.channel(clientID))
	// Wait for the confirmation so no publish after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	closePS := sync.OnceValue(ps.Close)
	msgs := ps.Channel()

	go func() {
		defer func() { _ = closePS() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domainauth.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed session event", "client_id", clientID, "error", err)
					continue
				}
				fn(ev)
			}
		}
	}()

	return func() {
		if err := closePS(); err != nil {
			b.logger.Debug("pubsub close", "client_id", clientID, "error", err)
		}
	}, nil
}
