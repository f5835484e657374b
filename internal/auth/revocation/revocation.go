// Package revocation tracks access tokens that were invalidated before they
// expired, keyed by their jti claim.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// List records revoked token ids until their natural expiry.
type List interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// New returns a Redis-backed List when redisURL is set and an in-memory one
// otherwise.
func New(ctx context.Context, redisURL string) (List, error) {
	if redisURL == "" {
		return NewMemory(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client), nil
}
