package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseClient(t *testing.T, c Client) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Get(ctx, "search:missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "search:a", []byte("alpha"), time.Minute))
	require.NoError(t, c.Set(ctx, "search:b", []byte("beta"), time.Minute))
	require.NoError(t, c.Set(ctx, "stats:a", []byte("gamma"), time.Minute))

	got, err := c.Get(ctx, "search:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), got)

	require.NoError(t, c.Delete(ctx, "search:a"))
	_, err = c.Get(ctx, "search:a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.DeleteByPrefix(ctx, "search:"))
	_, err = c.Get(ctx, "search:b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	got, err = c.Get(ctx, "stats:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("gamma"), got)
}

func TestMemoryClient(t *testing.T) {
	c := NewMemoryClient(10, time.Hour)
	defer c.Close()
	exerciseClient(t, c)
}

func TestMemoryClient_ttl(t *testing.T) {
	c := NewMemoryClient(10, time.Hour)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryClient_evictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryClient(2, 0)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryClient_returnsCopies(t *testing.T) {
	c := NewMemoryClient(2, 0)
	ctx := context.Background()
	buf := []byte("value")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'X'
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))
}

func TestRedisClient(t *testing.T) {
	addr := os.Getenv("SHOHIN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOHIN_TEST_REDIS_ADDR not set")
	}
	c, err := NewRedisClient(RedisConfig{Addr: addr, Prefix: "shohin-test:"})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.DeleteByPrefix(context.Background(), ""))
	exerciseClient(t, c)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "search:brand_matching:bosch", Key("search", "brand_matching", "bosch"))
}
