package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Client{
		"memory": NewMemory("test", time.Minute),
		"redis":  NewRedisFromClient(rdb, "test"),
	}
}

func TestClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Get(ctx, "k")
			require.True(t, IsNotFound(err))

			require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
			v, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "v", v)

			require.NoError(t, c.Delete(ctx, "k"))
			_, err = c.Get(ctx, "k")
			require.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, c.Ping(ctx))
		})
	}
}

func TestClient_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "once", "payload", time.Minute))

			v, err := c.Take(ctx, "once")
			require.NoError(t, err)
			require.Equal(t, "payload", v)

			_, err = c.Take(ctx, "once")
			require.True(t, IsNotFound(err))
		})
	}
}

func TestClient_ConcurrentTake(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "race", "x", time.Minute))

			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := c.Take(ctx, "race"); err == nil {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, int32(1), wins)
		})
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", time.Minute)
	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	require.True(t, IsNotFound(err))

	// ttl 0 no expira
	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	v, err := c.Get(ctx, "forever")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestRedis_ExpiryAndPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisFromClient(rdb, "cg")
	require.NoError(t, c.Set(ctx, "consent:token:abc", "v", time.Second))
	require.True(t, mr.Exists("cg:consent:token:abc"))

	mr.FastForward(2 * time.Second)
	_, err := c.Take(ctx, "consent:token:abc")
	require.True(t, IsNotFound(err))
}
