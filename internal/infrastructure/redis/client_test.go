package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})), mr
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		c, _ := newTestClient(t)
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("SetGetDel", func(t *testing.T) {
		c, _ := newTestClient(t)
		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		val, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)

		require.NoError(t, c.Del(ctx, "k"))
		_, err = c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("SetNX", func(t *testing.T) {
		c, _ := newTestClient(t)
		ok, err := c.SetNX(ctx, "lock", "1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.SetNX(ctx, "lock", "2", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Expiration", func(t *testing.T) {
		c, mr := newTestClient(t)
		require.NoError(t, c.Set(ctx, "ttl", "v", time.Second))
		mr.FastForward(2 * time.Second)
		_, err := c.Get(ctx, "ttl")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("JSON", func(t *testing.T) {
		c, _ := newTestClient(t)
		type payload struct {
			Name string `json:"name"`
		}
		require.NoError(t, SetJSON(ctx, c, "json", payload{Name: "card"}, time.Minute))

		var out payload
		require.NoError(t, GetJSON(ctx, c, "json", &out))
		assert.Equal(t, "card", out.Name)
	})

	t.Run("Versioned", func(t *testing.T) {
		c, _ := newTestClient(t)
		var out string
		gen, err := GetVersionedJSON(ctx, c, "v", &out)
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, int64(0), gen)

		require.NoError(t, SetVersionedJSON(ctx, c, "v", gen, "fresh", time.Minute))
		_, err = GetVersionedJSON(ctx, c, "v", &out)
		require.NoError(t, err)
		assert.Equal(t, "fresh", out)

		// Запись, загруженная до Bump, не отдаётся
		require.NoError(t, Bump(ctx, c, "v"))
		require.NoError(t, SetVersionedJSON(ctx, c, "v", gen, "stale", time.Minute))
		next, err := GetVersionedJSON(ctx, c, "v", &out)
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, int64(1), next)

		require.NoError(t, SetVersionedJSON(ctx, c, "v", next, "reloaded", time.Minute))
		_, err = GetVersionedJSON(ctx, c, "v", &out)
		require.NoError(t, err)
		assert.Equal(t, "reloaded", out)
	})
}
