//go:build integration

package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/testutil/containers"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, redis.FlushAll(ctx))

	cache := notifications.NewRedisCache(redis.Client, time.Minute)

	_, ok := cache.Get(ctx, "acme")
	require.False(t, ok)

	prefs := []notifications.Preference{{
		TenantID:       "acme",
		UserID:         "bob",
		AlwaysNotified: []string{notifications.TypeAssigned},
		Email:          "bob@example.com",
	}}
	cache.Set(ctx, "acme", prefs)

	got, ok := cache.Get(ctx, "acme")
	require.True(t, ok)
	require.Equal(t, prefs, got)

	_, ok = cache.Get(ctx, "other")
	require.False(t, ok)
}

func TestRedisCacheExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, redis.FlushAll(ctx))

	cache := notifications.NewRedisCache(redis.Client, 100*time.Millisecond)
	cache.Set(ctx, "acme", []notifications.Preference{{TenantID: "acme", UserID: "bob"}})

	_, ok := cache.Get(ctx, "acme")
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)
	_, ok = cache.Get(ctx, "acme")
	require.False(t, ok)
}
