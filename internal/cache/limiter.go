package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed window counter: the first hit in a window starts its expiry.
var attemptScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// AttemptLimiter allows up to limit attempts per key in each window.
type AttemptLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewAttemptLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		client: client,
		prefix: keyPrefix(prefix),
		limit:  limit,
		window: window,
	}
}

func (l *AttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 || l.window <= 0 {
		return true, nil
	}

	windowMs := l.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	fullKey := fmt.Sprintf("%s:attempts:%s", l.prefix, key)
	count, err := attemptScript.Run(ctx, l.client, []string{fullKey}, windowMs).Int64()
	if err != nil {
		return false, fmt.Errorf("counting attempts: %w", err)
	}

	return count <= int64(l.limit), nil
}
