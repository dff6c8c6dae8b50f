package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/auth"
	"github.com/elskow/mystery-message/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLock_Acquire(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	lock := NewLock(client, "test:", 30*time.Second, zap.NewNop())

	release, err := lock.Acquire(ctx, "register:a@x.com")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:register:a@x.com"))

	_, err = lock.Acquire(ctx, "register:a@x.com")
	assert.ErrorIs(t, err, auth.ErrRegistrationInProgress)

	// Other keys are independent
	releaseOther, err := lock.Acquire(ctx, "register:b@x.com")
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, mr.Exists("test:lock:register:a@x.com"))

	release, err = lock.Acquire(ctx, "register:a@x.com")
	require.NoError(t, err)
	release()
}

func TestLock_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	lock := NewLock(client, "test", 5*time.Second, zap.NewNop())

	staleRelease, err := lock.Acquire(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)

	release, err := lock.Acquire(ctx, "k")
	require.NoError(t, err, "an expired lock can be taken again")

	// The stale holder must not remove the new holder's lock
	staleRelease()
	assert.True(t, mr.Exists("test:lock:k"))

	release()
	assert.False(t, mr.Exists("test:lock:k"))
}

func TestLock_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	lock := NewLock(client, "test", time.Second, zap.NewNop())
	mr.Close()

	_, err := lock.Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrRegistrationInProgress)
}

func TestAttemptLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	limiter := NewAttemptLimiter(client, "test", 3, time.Minute)

	for i := 1; i <= 3; i++ {
		allowed, err := limiter.Allow(ctx, "sign-in:alice")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i)
	}

	allowed, err := limiter.Allow(ctx, "sign-in:alice")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "sign-in:bob")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are counted separately")

	assert.True(t, mr.TTL("test:attempts:sign-in:alice") > 0)

	mr.FastForward(time.Minute + time.Second)

	allowed, err = limiter.Allow(ctx, "sign-in:alice")
	require.NoError(t, err)
	assert.True(t, allowed, "a new window starts after expiry")
}

func TestAttemptLimiter_Disabled(t *testing.T) {
	_, client := newTestRedis(t)

	tests := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"zero limit", 0, time.Minute},
		{"zero window", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewAttemptLimiter(client, "test", tt.limit, tt.window)
			for i := 0; i < 10; i++ {
				allowed, err := limiter.Allow(context.Background(), "k")
				require.NoError(t, err)
				assert.True(t, allowed)
			}
		})
	}
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "mm", keyPrefix("mm:"))
	assert.Equal(t, "mm", keyPrefix(" mm "))
	assert.Equal(t, "mystery-message", keyPrefix(""))
}

func TestNewBackends(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		lc := fxtest.NewLifecycle(t)
		backends := newBackends(lc, &config.AppConfig{}, zap.NewNop())
		assert.Nil(t, backends.Locker)
		assert.Nil(t, backends.Limiter)
		lc.RequireStart().RequireStop()
	})

	t.Run("enabled", func(t *testing.T) {
		mr := miniredis.RunT(t)
		lc := fxtest.NewLifecycle(t)
		cfg := &config.AppConfig{Redis: config.RedisConfig{
			Enabled:      true,
			Addr:         mr.Addr(),
			KeyPrefix:    "mm",
			LockTTL:      time.Second,
			SignInLimit:  1,
			SignInWindow: time.Minute,
		}}

		backends := newBackends(lc, cfg, zap.NewNop())
		require.NotNil(t, backends.Locker)
		require.NotNil(t, backends.Limiter)
		lc.RequireStart()
		defer lc.RequireStop()

		allowed, err := backends.Limiter.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, allowed)
		allowed, err = backends.Limiter.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}
