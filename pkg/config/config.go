// Package config loads bugbug client settings from defaults, an optional
// bugbug.yaml file and BUGBUG_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/logging"
	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/Sternrassler/bugbug-client/pkg/session"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// EnvPrefix prefixes every environment variable, e.g. BUGBUG_BASE_URL.
const EnvPrefix = "BUGBUG"

const (
	configName = "bugbug"
	configType = "yaml"
)

// Keys understood by Load.
const (
	KeyBaseURL          = "base_url"
	KeyAPIKey           = "api_key"
	KeyRetryTimeout     = "retry_timeout"
	KeyRetryInterval    = "retry_interval"
	KeyTransportRetries = "transport_retries"
	KeyHTTPTimeout      = "http_timeout"
	KeyRateLimit        = "rate_limit"
	KeyRedisAddr        = "redis.addr"
	KeyRedisTTL         = "redis.ttl"
	KeyLogLevel         = "log.level"
	KeyLogPretty        = "log.pretty"
	KeyListen           = "listen"
)

// Config holds every setting of the bugbug tools.
type Config struct {
	BaseURL          string
	APIKey           string
	RetryTimeout     time.Duration
	RetryInterval    time.Duration
	TransportRetries int
	HTTPTimeout      time.Duration

	// RateLimit caps requests per second to bugbug (0 = unlimited).
	RateLimit float64

	Redis RedisConfig
	Log   LogConfig

	// Listen is the address of `bugbug serve`.
	Listen string
}

// RedisConfig selects the shared memo store. An empty Addr keeps the memo
// in process memory.
type RedisConfig struct {
	Addr string
	TTL  time.Duration
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string
	Pretty bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	sched := schedules.DefaultConfig()
	sess := session.DefaultConfig()
	return Config{
		BaseURL:          sched.BaseURL,
		APIKey:           sess.APIKey,
		RetryTimeout:     sched.RetryTimeout,
		RetryInterval:    sched.RetryInterval,
		TransportRetries: sess.Retries,
		HTTPTimeout:      sess.Timeout,
		Redis:            RedisConfig{TTL: 24 * time.Hour},
		Log:              LogConfig{Level: string(logging.LevelInfo)},
		Listen:           ":8080",
	}
}

// Load reads the configuration. If path is empty, bugbug.yaml is looked up
// in the working directory and silently skipped when absent; an explicit
// path must exist. A nil v uses a fresh viper instance.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	def := DefaultConfig()
	v.SetDefault(KeyBaseURL, def.BaseURL)
	v.SetDefault(KeyAPIKey, def.APIKey)
	v.SetDefault(KeyRetryTimeout, def.RetryTimeout)
	v.SetDefault(KeyRetryInterval, def.RetryInterval)
	v.SetDefault(KeyTransportRetries, def.TransportRetries)
	v.SetDefault(KeyHTTPTimeout, def.HTTPTimeout)
	v.SetDefault(KeyRateLimit, def.RateLimit)
	v.SetDefault(KeyRedisAddr, def.Redis.Addr)
	v.SetDefault(KeyRedisTTL, def.Redis.TTL)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogPretty, def.Log.Pretty)
	v.SetDefault(KeyListen, def.Listen)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := Config{
		BaseURL:          v.GetString(KeyBaseURL),
		APIKey:           v.GetString(KeyAPIKey),
		RetryTimeout:     v.GetDuration(KeyRetryTimeout),
		RetryInterval:    v.GetDuration(KeyRetryInterval),
		TransportRetries: v.GetInt(KeyTransportRetries),
		HTTPTimeout:      v.GetDuration(KeyHTTPTimeout),
		RateLimit:        v.GetFloat64(KeyRateLimit),
		Redis: RedisConfig{
			Addr: v.GetString(KeyRedisAddr),
			TTL:  v.GetDuration(KeyRedisTTL),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Pretty: v.GetBool(KeyLogPretty),
		},
		Listen: v.GetString(KeyListen),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%s is required", KeyBaseURL)
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s %q is not an absolute URL", KeyBaseURL, c.BaseURL)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%s is required", KeyAPIKey)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("%s must be > 0 (got %v)", KeyRetryInterval, c.RetryInterval)
	}
	if c.RetryTimeout < c.RetryInterval {
		return fmt.Errorf("%s (%v) must be >= %s (%v)", KeyRetryTimeout, c.RetryTimeout, KeyRetryInterval, c.RetryInterval)
	}
	if c.TransportRetries < 0 {
		return fmt.Errorf("%s must be >= 0 (got %d)", KeyTransportRetries, c.TransportRetries)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%s must be > 0 (got %v)", KeyHTTPTimeout, c.HTTPTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s must be >= 0 (got %v)", KeyRateLimit, c.RateLimit)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("%s must be >= 0 (got %v)", KeyRedisTTL, c.Redis.TTL)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return nil
}

// Session returns the transport configuration. The logger is left for the
// caller to set.
func (c Config) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.APIKey = c.APIKey
	cfg.Retries = c.TransportRetries
	cfg.Timeout = c.HTTPTimeout
	if c.RateLimit > 0 {
		burst := int(math.Ceil(c.RateLimit))
		cfg.RateLimiter = rate.NewLimiter(rate.Limit(c.RateLimit), burst)
	}
	return cfg
}

// Schedules returns the fetcher configuration without HTTP client or cache.
func (c Config) Schedules() schedules.Config {
	cfg := schedules.DefaultConfig()
	cfg.BaseURL = c.BaseURL
	cfg.RetryTimeout = c.RetryTimeout
	cfg.RetryInterval = c.RetryInterval
	return cfg
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Log.Pretty
	return cfg
}
