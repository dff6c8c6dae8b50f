package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/auth"
)

const releaseTimeout = 2 * time.Second

// Deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a best-effort mutual exclusion on a key. The TTL bounds how long a
// crashed holder can block others.
type Lock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewLock(client redis.UniversalClient, prefix string, ttl time.Duration, log *zap.Logger) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{
		client: client,
		prefix: keyPrefix(prefix),
		ttl:    ttl,
		log:    log,
	}
}

// Acquire takes the lock for key or fails with auth.ErrRegistrationInProgress.
func (l *Lock) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := fmt.Sprintf("%s:lock:%s", l.prefix, key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, auth.ErrRegistrationInProgress
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.log.Warn("failed to release lock", zap.String("key", fullKey), zap.Error(err))
		}
	}
	return release, nil
}
