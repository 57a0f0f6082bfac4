package brain

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSetAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute, 10)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", &CachedResult{Text: "hello", Model: "m"}))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Text)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "expired entry must miss")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour, 2)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", &CachedResult{Text: "a"}))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "b", &CachedResult{Text: "b"}))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "c", &CachedResult{Text: "c"}))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, 0)
	require.NoError(t, c.Set(ctx, "k", &CachedResult{Text: "original"}))

	got, _, _ := c.Get(ctx, "k")
	got.Text = "mutated"
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "original", again.Text)
}

func TestRedisCache_RoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, "test:", time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", &CachedResult{Text: "hi", Model: "gpt-4o-mini", Confidence: 0.8}))
	assert.True(t, mr.Exists("test:k"))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", got.Model)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ErrorsSurface(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, "", 0)

	require.NoError(t, mr.Set("engage:brain:bad", "{not json"))
	_, _, err := c.Get(ctx, "bad")
	assert.Error(t, err)

	mr.Close()
	_, _, err = c.Get(ctx, "k")
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), []string{mr.Addr()}, "", 0)
	require.NoError(t, err)
	_ = client.Close()

	_, err = DialRedis(context.Background(), nil, "", 0)
	assert.Error(t, err)
}
