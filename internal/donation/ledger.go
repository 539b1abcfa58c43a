package donation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventTTL is how long a processed webhook event id is remembered. Stripe
// retries deliveries for up to three days.
const EventTTL = 72 * time.Hour

// EventLedger claims webhook event ids so a redelivered event is applied
// once.
type EventLedger interface {
	// Claim returns true when the caller is the first to see eventID.
	Claim(ctx context.Context, eventID string) (bool, error)
}

// NopLedger claims every event.
type NopLedger struct{}

func (NopLedger) Claim(context.Context, string) (bool, error) { return true, nil }

// RedisLedger implements EventLedger with SETNX.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ EventLedger = (*RedisLedger)(nil)

func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client, ttl: EventTTL}
}

func ledgerKey(eventID string) string { return "webhook:event:" + eventID }

func (l *RedisLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, ledgerKey(eventID), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return ok, nil
}
