package service

import (
	"context"
	"fmt"
)

const SettingAPIToken = "api_token"

// TokenSource resolves the provider token: a token stored through the
// settings API wins over the one from configuration.
type TokenSource struct {
	settings SettingsStore
	fallback string
}

func NewTokenSource(settings SettingsStore, fallback string) *TokenSource {
	return &TokenSource{settings: settings, fallback: fallback}
}

func (t *TokenSource) ActiveToken(ctx context.Context) (string, error) {
	if t.settings != nil {
		token, err := t.settings.GetSetting(ctx, SettingAPIToken)
		if err != nil {
			return "", fmt.Errorf("read token setting: %w", err)
		}
		if token != "" {
			return token, nil
		}
	}
	if t.fallback == "" {
		return "", ErrNoToken
	}
	return t.fallback, nil
}

// Store validates token against the provider before persisting it.
func (t *TokenSource) Store(ctx context.Context, providers *ProviderCache, token string) error {
	p, err := providers.Get(ctx, token)
	if err != nil {
		return err
	}
	if err := p.VerifyToken(ctx); err != nil {
		return err
	}
	return t.settings.SetSetting(ctx, SettingAPIToken, token)
}
