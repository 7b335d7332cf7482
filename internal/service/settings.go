package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"flareddns/internal/ratelimit"
)

const (
	SettingRateLimitWindow = "rate_limit_window" // milliseconds
	SettingRateLimitMax    = "rate_limit_max"
)

// LoadRateLimit overlays stored rate limit settings on base. Unset or
// unparsable values keep the base value.
func LoadRateLimit(ctx context.Context, settings SettingsStore, base ratelimit.Config) (ratelimit.Config, error) {
	cfg := base

	raw, err := settings.GetSetting(ctx, SettingRateLimitWindow)
	if err != nil {
		return base, fmt.Errorf("read %s: %w", SettingRateLimitWindow, err)
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		cfg.Window = time.Duration(ms) * time.Millisecond
	}

	raw, err = settings.GetSetting(ctx, SettingRateLimitMax)
	if err != nil {
		return base, fmt.Errorf("read %s: %w", SettingRateLimitMax, err)
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		cfg.MaxRequests = n
	}
	return cfg, nil
}

func SaveRateLimit(ctx context.Context, settings SettingsStore, cfg ratelimit.Config) error {
	if err := settings.SetSetting(ctx, SettingRateLimitWindow, strconv.FormatInt(cfg.Window.Milliseconds(), 10)); err != nil {
		return err
	}
	return settings.SetSetting(ctx, SettingRateLimitMax, strconv.Itoa(cfg.MaxRequests))
}
