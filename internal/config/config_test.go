package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  trusted_proxies: ["10.0.0.0/8", "127.0.0.1"]
provider:
  kind: route53
  api_token: AKID:SECRET
ddns:
  users:
    - username: router
      password: pw
    - username: nas
      password_hash: $2a$10$abcdefghijklmnopqrstuu
  rate_limit:
    window: 2m
    max_requests: 5
admin:
  api_token: admintoken
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "route53", cfg.Provider.Kind)
	assert.Equal(t, "us-east-1", cfg.Provider.Region)
	assert.Len(t, cfg.DDNS.Users, 2)
	assert.Equal(t, 2*time.Minute, cfg.DDNS.RateLimit.Window)
	assert.Equal(t, 5, cfg.DDNS.RateLimit.MaxRequests)
	assert.Equal(t, "admintoken", cfg.Admin.APIToken)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "cloudflare", cfg.Provider.Kind)
	assert.Equal(t, time.Minute, cfg.DDNS.RateLimit.Window)
	assert.Equal(t, 30, cfg.DDNS.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Server.HostnameTimeout)
	assert.Contains(t, cfg.Warnings, "no DDNS users configured, every update will be rejected")
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DDNS_USERS", "router:pa:ss, nas:x")
	t.Setenv("CF_API_TOKEN", "cf-token")
	t.Setenv("RATE_LIMIT_MAX", "7")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "cf-token", cfg.Provider.APIToken)
	assert.Equal(t, []DDNSUser{
		{Username: "router", Password: "pa:ss"},
		{Username: "nas", Password: "x"},
	}, cfg.DDNS.Users)
	assert.Equal(t, 7, cfg.DDNS.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.DDNS.RateLimit.Window)
	assert.NotEmpty(t, cfg.Warnings)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("API_TOKEN", "env-token")
	t.Setenv("DATABASE_URL", "postgres://env")
	cfg, err := Load(writeConfig(t, "provider:\n  api_token: file-token\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Provider.APIToken)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown provider":   "provider:\n  kind: bind\n",
		"user with no pass":  "ddns:\n  users:\n    - username: a\n",
		"duplicate user":     "ddns:\n  users:\n    - {username: a, password: x}\n    - {username: a, password: y}\n",
		"bad trusted proxy":  "server:\n  trusted_proxies: [nonsense]\n",
		"ldap without url":   "ldap:\n  enabled: true\n",
		"ldap without creds": "ldap:\n  enabled: true\n  url: ldaps://dc\n  base_dn: dc=x\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestParseUsersRejectsMalformed(t *testing.T) {
	_, err := ParseUsers([]string{"nopassword"})
	assert.Error(t, err)
	_, err = ParseUsers([]string{":pw"})
	assert.Error(t, err)
}

func TestParseTrusted(t *testing.T) {
	p, err := ParseTrusted("10.1.2.3/8")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/8", p.String())

	p, err = ParseTrusted("::ffff:127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1/32", p.String())
}
