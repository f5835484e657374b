package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var isRevokedDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "lims_token_revocation_check_duration_seconds",
	Help:    "Latency of token revocation checks",
	Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
})

const revokedKeyPrefix = "lims:revoked:jti:"

// Redis is a List shared by every API instance through Redis.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis list on client. The client lifecycle stays with
// the caller.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Revoke marks jti as revoked for ttl.
func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether jti is currently revoked.
func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	start := time.Now()
	defer func() { isRevokedDuration.Observe(time.Since(start).Seconds()) }()

	if jti == "" {
		return false, nil
	}
	_, err := r.client.Get(ctx, revokedKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
