package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flareddns/internal/fake"
	"flareddns/internal/ratelimit"
	"flareddns/internal/service"
)

func TestRateLimitSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore()
	base := ratelimit.Config{Window: time.Minute, MaxRequests: 30}

	cfg, err := service.LoadRateLimit(ctx, store, base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg, "nothing stored keeps the base")

	require.NoError(t, service.SaveRateLimit(ctx, store, ratelimit.Config{Window: 90 * time.Second, MaxRequests: 5}))
	raw, _ := store.GetSetting(ctx, service.SettingRateLimitWindow)
	assert.Equal(t, "90000", raw)

	cfg, err = service.LoadRateLimit(ctx, store, base)
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Config{Window: 90 * time.Second, MaxRequests: 5}, cfg)
}

func TestRateLimitSettingsIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore()
	require.NoError(t, store.SetSetting(ctx, service.SettingRateLimitWindow, "soon"))
	require.NoError(t, store.SetSetting(ctx, service.SettingRateLimitMax, "-3"))

	base := ratelimit.Config{Window: time.Minute, MaxRequests: 30}
	cfg, err := service.LoadRateLimit(ctx, store, base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)
}

func TestRateLimitSettingsStoreError(t *testing.T) {
	store := fake.NewStore()
	store.Err = fake.ErrUnavailable
	base := ratelimit.Config{Window: time.Minute, MaxRequests: 30}

	cfg, err := service.LoadRateLimit(context.Background(), store, base)
	assert.ErrorIs(t, err, fake.ErrUnavailable)
	assert.Equal(t, base, cfg)
}
