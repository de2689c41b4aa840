package push

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer is the idempotency gate: Claim must be an atomic set-if-absent with
// a TTL, Release an unconditional delete.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisClaimer claims message ids via SET NX EX. A claim left in place
// expires with the TTL, which bounds both memory growth and the window in
// which a redelivery is treated as a duplicate.
type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaimer(addr string, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	return c.client.SetNX(ctx, key, "1", c.ttl).Result()
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Ping probes the Redis connection.
func (c *RedisClaimer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisClaimer) Close() error {
	return c.client.Close()
}
