// Package cache holds the Redis-backed coordination used across API replicas:
// the per-email registration lock and the sign-in attempt limiter.
package cache

import (
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/elskow/mystery-message/internal/config"
)

func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// keyPrefix normalizes the configured prefix so keys read "<prefix>:<scope>:...".
func keyPrefix(prefix string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "mystery-message"
	}
	return prefix
}
