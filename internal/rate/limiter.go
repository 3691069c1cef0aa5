package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is a fixed-window budget. A zero Max disables the policy.
type Policy struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether p limits anything.
func (p Policy) Enabled() bool {
	return p.Max > 0 && p.Window > 0
}

// Limiter counts hits per key in Redis.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Key builders. Identifiers are lower-cased so case variants share a budget.
func LoginEmailKey(email string) string { return "ja:rl:le:" + strings.ToLower(email) }

func LoginIPKey(ip string) string { return "ja:rl:li:" + ip }

func ForgotPasswordKey(email string) string { return "ja:rl:fp:" + strings.ToLower(email) }

func ResendVerifyKey(email string) string { return "ja:rl:rv:" + strings.ToLower(email) }

// Check reports ErrRateLimited when key already spent its budget, without counting.
func (l *Limiter) Check(ctx context.Context, key string, p Policy) error {
	if l == nil || !p.Enabled() {
		return nil
	}
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(p.Max) {
		return ErrRateLimited
	}
	return nil
}

// Hit counts one event against key.
func (l *Limiter) Hit(ctx context.Context, key string, p Policy) (int64, error) {
	if l == nil || !p.Enabled() {
		return 0, nil
	}
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, p.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

// Take counts one event and returns ErrRateLimited once the count exceeds the budget.
func (l *Limiter) Take(ctx context.Context, key string, p Policy) error {
	count, err := l.Hit(ctx, key, p)
	if err != nil {
		return err
	}
	if p.Enabled() && count > int64(p.Max) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters for keys.
func (l *Limiter) Reset(ctx context.Context, keys ...string) error {
	if l == nil || len(keys) == 0 {
		return nil
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
