package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const processedEventPrefix = "fanout:processed:"

// EventGuard records handled change-event ids with SETNX so a redelivered event is
// skipped for the lifetime of the key.
type EventGuard struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewEventGuard(client *goredis.Client, ttl time.Duration) *EventGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventGuard{client: client, ttl: ttl}
}

func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	return g.client.SetNX(ctx, processedEventPrefix+eventID, 1, g.ttl).Result()
}

func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	return g.client.Del(ctx, processedEventPrefix+eventID).Err()
}
