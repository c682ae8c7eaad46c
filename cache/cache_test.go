package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtarp/main_backend/config"
	ds "gtarp/main_backend/database_service"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestNotificationDeduplicator(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	d := NewNotificationDeduplicator(client, time.Hour)

	ok, err := d.TryAcquire(ctx, "application", "a1", "approved")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.TryAcquire(ctx, "application", "a1", "approved")
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same transition must fail")

	ok, err = d.TryAcquire(ctx, "application", "a1", "rejected")
	require.NoError(t, err)
	assert.True(t, ok, "a different target status is a different notification")

	require.NoError(t, d.Release(ctx, "application", "a1", "approved"))
	ok, err = d.TryAcquire(ctx, "application", "a1", "approved")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, mr.Exists("portal:notify:application:a1:approved"))
	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("portal:notify:application:a1:approved"))
}

func TestPresenceCache(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	p := NewPresenceCache(client, 15*time.Second)

	_, ok, err := p.Load(ctx, "jobs")
	require.NoError(t, err)
	assert.False(t, ok)

	rows := []ds.StaffAvailability{{UserID: "s1", DisplayName: "Mod", Department: "jobs", Available: true, ActiveLoad: 2}}
	require.NoError(t, p.Store(ctx, "jobs", rows))
	require.NoError(t, p.Store(ctx, "", rows))

	got, ok, err := p.Load(ctx, "jobs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Mod", got[0].DisplayName)
	assert.Equal(t, 2, got[0].ActiveLoad)

	require.NoError(t, p.Invalidate(ctx, "jobs"))
	assert.False(t, mr.Exists("portal:presence:jobs"))
	assert.False(t, mr.Exists("portal:presence:all"))

	require.NoError(t, p.Store(ctx, "jobs", rows))
	mr.FastForward(time.Minute)
	_, ok, err = p.Load(ctx, "jobs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenceCacheInvalidateAll(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	p := NewPresenceCache(client, time.Minute)

	rows := []ds.StaffAvailability{{UserID: "s1", Department: "jobs", Available: true}}
	for _, dept := range []string{"", "jobs", "gangs", "media"} {
		require.NoError(t, p.Store(ctx, dept, rows))
	}
	require.NoError(t, mr.Set("portal:dedup:keep", "1"))

	require.NoError(t, p.InvalidateAll(ctx))
	for _, key := range []string{"portal:presence:all", "portal:presence:jobs", "portal:presence:gangs", "portal:presence:media"} {
		assert.False(t, mr.Exists(key), key)
	}
	assert.True(t, mr.Exists("portal:dedup:keep"), "unrelated keys survive")

	require.NoError(t, p.InvalidateAll(ctx), "an empty cache is not an error")
}

func TestConnect(t *testing.T) {
	mr, _ := setupTestRedis(t)
	addr := mr.Addr()
	client, err := Connect(context.Background(), config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = Connect(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
