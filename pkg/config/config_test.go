package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/logging"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bugbug.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "https://bugbug.herokuapp.com", cfg.BaseURL)
	assert.Equal(t, "gecko-taskgraph", cfg.APIKey)
	assert.Equal(t, 480*time.Second, cfg.RetryTimeout)
	assert.Equal(t, 10*time.Second, cfg.RetryInterval)
	assert.Equal(t, 5, cfg.TransportRetries)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadNilViper(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
base_url: https://bugbug.example.com
retry_timeout: 60s
retry_interval: 5s
transport_retries: 2
redis:
  addr: localhost:6379
  ttl: 1h
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://bugbug.example.com", cfg.BaseURL)
	assert.Equal(t, time.Minute, cfg.RetryTimeout)
	assert.Equal(t, 5*time.Second, cfg.RetryInterval)
	assert.Equal(t, 2, cfg.TransportRetries)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	// Unset keys keep their defaults.
	assert.Equal(t, "gecko-taskgraph", cfg.APIKey)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "base_url: https://file.example.com\nredis:\n  addr: file:6379\n")
	t.Setenv("BUGBUG_BASE_URL", "https://env.example.com")
	t.Setenv("BUGBUG_REDIS_ADDR", "env:6379")
	t.Setenv("BUGBUG_API_KEY", "my-project")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, "my-project", cfg.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		contains string
	}{
		{"relative base url", map[string]string{"BUGBUG_BASE_URL": "bugbug"}, "base_url"},
		{"timeout below interval", map[string]string{"BUGBUG_RETRY_TIMEOUT": "5s"}, "retry_timeout"},
		{"negative retries", map[string]string{"BUGBUG_TRANSPORT_RETRIES": "-1"}, "transport_retries"},
		{"negative rate limit", map[string]string{"BUGBUG_RATE_LIMIT": "-2"}, "rate_limit"},
		{"unknown log level", map[string]string{"BUGBUG_LOG_LEVEL": "chatty"}, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(viper.New(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "api_key is required", err.Error())
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://bugbug.example.com"
	cfg.APIKey = "custom"
	cfg.TransportRetries = 1
	cfg.HTTPTimeout = 5 * time.Second
	cfg.RetryTimeout = 30 * time.Second
	cfg.Log = LogConfig{Level: "warning", Pretty: true}

	sess := cfg.Session()
	assert.Equal(t, "custom", sess.APIKey)
	assert.Equal(t, 1, sess.Retries)
	assert.Equal(t, 5*time.Second, sess.Timeout)
	assert.Nil(t, sess.RateLimiter)
	require.NoError(t, sess.Validate())

	cfg.RateLimit = 2.5
	limited := cfg.Session()
	require.NotNil(t, limited.RateLimiter)
	assert.Equal(t, rate.Limit(2.5), limited.RateLimiter.Limit())
	assert.Equal(t, 3, limited.RateLimiter.Burst())

	sched := cfg.Schedules()
	assert.Equal(t, "https://bugbug.example.com", sched.BaseURL)
	assert.Equal(t, 30*time.Second, sched.RetryTimeout)
	assert.Equal(t, 10*time.Second, sched.RetryInterval)

	logCfg := cfg.Logging()
	assert.Equal(t, logging.LevelWarn, logCfg.Level)
	assert.True(t, logCfg.Pretty)
}
