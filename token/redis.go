package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps Redis connectivity failures from the
// Redis-backed stores.
var ErrStoreUnavailable = fmt.Errorf("token store unavailable")

const (
	redisRevokedPrefix = "warden:revoked:"
	redisRatePrefix    = "warden:rate:"
)

// redisRevocations is a RevocationStore shared across processes. Entries are
// keys with a TTL matching the token's remaining lifetime, so pruning is
// handled by Redis itself and Prune is a no-op.
type redisRevocations struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisRevocationStore returns a [RevocationStore] backed by the given
// Redis client. Use it when more than one process must observe a revocation.
func NewRedisRevocationStore(client redis.UniversalClient) RevocationStore {
	return &redisRevocations{client: client, now: time.Now}
}

func (s *redisRevocations) Revoke(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already expired; nothing can verify it anyway.
		return nil
	}
	if err := s.client.Set(ctx, redisRevokedPrefix+id, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, redisRevokedPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *redisRevocations) Prune(context.Context, time.Time) error {
	return nil
}

func (s *redisRevocations) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisRevokedPrefix+"*", 512).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// redisRateLimiter approximates the sliding window with fixed-window INCR
// counters that expire after the window. Good enough across processes; the
// in-process limiter remains the reference behavior.
type redisRateLimiter struct {
	client redis.UniversalClient
	max    int
	window time.Duration
}

// NewRedisRateLimiter returns a [RateLimiter] backed by the given Redis
// client with fixed-window semantics.
func NewRedisRateLimiter(client redis.UniversalClient, max int, window time.Duration) RateLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &redisRateLimiter{client: client, max: max, window: window}
}

func (l *redisRateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := redisRatePrefix + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if count > int64(l.max) {
		// Rejected attempts must not extend the budget.
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return false, nil
	}
	return true, nil
}

func (l *redisRateLimiter) Prune(context.Context, time.Time) error {
	return nil
}
