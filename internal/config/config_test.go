package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeYAML(t, "server:\n  base_url: http://localhost:9000\n")

	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":9000", c.Server.Addr)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, "10m", c.Consent.TokenTTL)
	require.Equal(t, "30s", c.Policy.DefaultTimeout)
	require.Equal(t, "sid", c.Auth.Session.CookieName)
	require.Equal(t, filepath.Join(filepath.Dir(p), "controlplane.yaml"), c.ControlPlane.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7777")
	t.Setenv("CONSENT_TOKEN_TTL", "90s")
	t.Setenv("POLICY_TIMEOUT", "bogus") // ignorado: no parsea
	t.Setenv("CACHE_KIND", "redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")

	c, err := Load(writeYAML(t, "app:\n  app_env: dev\n"))
	require.NoError(t, err)
	require.Equal(t, ":7777", c.Server.Addr)
	require.Equal(t, 90*time.Second, MustDuration(c.Consent.TokenTTL, 0))
	require.Equal(t, "30s", c.Policy.DefaultTimeout)
	require.Equal(t, "redis", c.Cache.Kind)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":       "consent:\n  token_ttl: tomorrow\n",
		"negative duration":  "policy:\n  default_timeout: -1s\n",
		"unknown cache":      "cache:\n  kind: memcached\n",
		"redis without addr": "cache:\n  kind: redis\n",
		"malformed yaml":     "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			require.Error(t, err)
		})
	}
}

func TestMustDuration_Fallback(t *testing.T) {
	require.Equal(t, 5*time.Second, MustDuration("", 5*time.Second))
	require.Equal(t, 5*time.Second, MustDuration("nope", 5*time.Second))
	require.Equal(t, time.Minute, MustDuration("1m", 5*time.Second))
}
