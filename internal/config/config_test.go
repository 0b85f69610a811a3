package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, 32))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndPolicies(t *testing.T) {
	t.Setenv("SESSION_MASTER_KEY", testKey())
	t.Setenv("TRUSTGATE_JWT_SECRET", "s3cret")

	path := writeConfig(t, `
session:
  policies:
    admin:
      ttl: 4h
      cookie_path: /root
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Cache.Driver)
	require.Equal(t, "tg_session", cfg.Session.Cookie.Name)
	require.Equal(t, 1, cfg.Crypto.CurrentVersion)
	require.Equal(t, "4h", cfg.Session.Policies["admin"].TTL)
	require.Equal(t, "/root", cfg.Session.Policies["admin"].CookiePath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SESSION_MASTER_KEY", testKey())
	t.Setenv("TRUSTGATE_JWT_SECRET", "s3cret")
	t.Setenv("TRUSTGATE_API_KEYS", "k1, k2 ,,k3")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("CACHE_DRIVER", "redis")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "redis", cfg.Cache.Driver)
	require.Equal(t, []string{"k1", "k2", "k3"}, cfg.Auth.APIKeys)
}

func TestLoad_RejectsMissingSecrets(t *testing.T) {
	t.Setenv("SESSION_MASTER_KEY", "")
	t.Setenv("TRUSTGATE_JWT_SECRET", "")

	_, err := Load(writeConfig(t, ""))
	require.Error(t, err)
}

func TestLoad_RejectsBadKeyOrdering(t *testing.T) {
	t.Setenv("SESSION_MASTER_KEY", testKey())
	t.Setenv("TRUSTGATE_JWT_SECRET", "s3cret")

	path := writeConfig(t, `
crypto:
  current_version: 2
  previous_key: `+testKey()+`
  previous_version: 3
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsInvalidDuration(t *testing.T) {
	t.Setenv("SESSION_MASTER_KEY", testKey())
	t.Setenv("TRUSTGATE_JWT_SECRET", "s3cret")

	_, err := Load(writeConfig(t, "rate:\n  window: banana\n"))
	require.Error(t, err)
}
