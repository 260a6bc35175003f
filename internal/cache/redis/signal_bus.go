package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/swapsmith/orchestrator/internal/domain"
)

// statusChangeChannel is the single Pub/Sub channel every instance publishes
// order-status changes to and subscribes from.
const statusChangeChannel = "swapsmith:status-changes"

// SignalBus implements domain.SignalBus using Redis Pub/Sub, so a status
// change observed by one monitor instance reaches the notification bridge
// of any instance subscribed to the channel.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish broadcasts change to every subscriber. Pub/Sub delivery is
// best-effort: a subscriber that is not connected at publish time misses the
// message, which is acceptable because status_log remains the durable
// record a client can always reconcile against.
func (sb *SignalBus) Publish(ctx context.Context, change domain.StatusChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("redis: marshal status change: %w", err)
	}
	if err := sb.rdb.Publish(ctx, statusChangeChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish status change: %w", err)
	}
	return nil
}

// Subscribe returns a channel of status changes, closed when ctx is done.
func (sb *SignalBus) Subscribe(ctx context.Context) (<-chan domain.StatusChange, error) {
	pubsub := sb.rdb.Subscribe(ctx, statusChangeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe status changes: %w", err)
	}

	out := make(chan domain.StatusChange, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change domain.StatusChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
