package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore connects to VERISAFE_TEST_REDIS_URL under a throwaway prefix.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("VERISAFE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("VERISAFE_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)

	prefix := "verisafe-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})
	return NewRedisStore(client, WithKeyPrefix(prefix))
}

func TestRedisStore_View(t *testing.T) {
	testViewStore(t, newRedisStore(t))
}

func TestRedisStore_Revocation(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	revoked, err := s.IsTokenInvalidated(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.InvalidateToken(ctx, "sess-1", time.Minute))
	revoked, err = s.IsTokenInvalidated(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := s.client.TTL(ctx, s.revokedPrefix+"sess-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	s := NewRedisStore(client)
	ctx := context.Background()

	assert.Equal(t, "verisafe:revoked:", s.revokedPrefix)
	assert.Equal(t, "verisafe:state:", s.valuePrefix)

	_, err := s.IsTokenInvalidated(ctx, "sess-1")
	assert.ErrorContains(t, err, "failed to check token invalidation")
	assert.ErrorContains(t, s.InvalidateToken(ctx, "sess-1", time.Minute), "failed to invalidate token")
	_, _, err = s.Get(ctx, "verisafe-view")
	assert.ErrorContains(t, err, "failed to read verisafe-view")
	assert.ErrorContains(t, s.Set(ctx, "verisafe-view", "main"), "failed to write verisafe-view")
}
