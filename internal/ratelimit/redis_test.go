package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisLimiter("not-a-valid-url", Window{Limit: 1, Duration: time.Second}, Window{Limit: 10, Duration: time.Minute})
	require.Error(t, err)
}

func TestRedisLimiter_BurstWindow(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://"+srv.Addr(),
		Window{Limit: 3, Duration: 10 * time.Second},
		Window{Limit: 100, Duration: 10 * time.Minute},
	)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be admitted", i)
	}

	d, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "request 4 should be rejected")
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// Advance past the burst window; the caller is admitted again.
	srv.FastForward(11 * time.Second)
	d, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "request after window reset should be admitted")
}

func TestRedisLimiter_IndependentCallers(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://"+srv.Addr(),
		Window{Limit: 1, Duration: 10 * time.Second},
		Window{Limit: 10, Duration: time.Minute},
	)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	d, err := limiter.Allow(ctx, "caller-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "caller-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = limiter.Allow(ctx, "caller-b")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "caller-b should not share caller-a counters")
}
