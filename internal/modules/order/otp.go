package order

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

const otpDigits = 6

func newOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		panic(fmt.Sprintf("order: reading random OTP: %v", err))
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64())
}

func otpMatches(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// AttemptLimiter gates delivery-code checks per order. Acquire counts one
// attempt and reports whether it may be checked; the count it returns is the
// only gate, so concurrent attempts never exceed the limit. Reset clears the
// count after a successful delivery.
type AttemptLimiter interface {
	Acquire(ctx context.Context, orderID types.ID) (bool, error)
	Reset(ctx context.Context, orderID types.ID) error
}

const otpAttemptsKey = "order:%s:otp_attempts"

// RedisAttemptLimiter keeps a per-order attempt counter whose TTL starts at
// the first attempt, so the lockout lifts when the window expires.
type RedisAttemptLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

func NewRedisAttemptLimiter(rdb *redis.Client, maxAttempts int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{redis: rdb, max: maxAttempts, window: window}
}

func (l *RedisAttemptLimiter) Acquire(ctx context.Context, orderID types.ID) (bool, error) {
	key := attemptsKey(orderID)
	n, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(l.max), nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, orderID types.ID) error {
	return l.redis.Del(ctx, attemptsKey(orderID)).Err()
}

func attemptsKey(orderID types.ID) string {
	return fmt.Sprintf(otpAttemptsKey, string(orderID))
}
