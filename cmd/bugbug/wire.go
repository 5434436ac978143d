package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/cache"
	"github.com/Sternrassler/bugbug-client/pkg/config"
	"github.com/Sternrassler/bugbug-client/pkg/logging"
	"github.com/Sternrassler/bugbug-client/pkg/perfherder"
	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/Sternrassler/bugbug-client/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type app struct {
	cfg     config.Config
	fetcher *schedules.Fetcher
	redis   *redis.Client
	logger  zerolog.Logger
}

func wireApp(ctx context.Context, v *viper.Viper, configPath string, stderr io.Writer) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging()
	logCfg.Output = stderr
	logging.Setup(logCfg)
	logger := logging.NewLogger("bugbug-cli")

	sessCfg := cfg.Session()
	sessLogger := logging.NewLogger("bugbug-session")
	sessCfg.Logger = &sessLogger
	httpClient, err := session.New(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("wire session: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	var store cache.Store = cache.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("Connected to Redis")
		store = cache.NewRedisStore(a.redis, cfg.Redis.TTL)
	}

	schedCfg := cfg.Schedules()
	schedLogger := logging.NewLogger("bugbug-schedules")
	schedCfg.HTTPClient = httpClient
	schedCfg.Cache = store
	schedCfg.Emitter = &perfherder.Emitter{Output: stderr, Getenv: os.Getenv}
	schedCfg.Logger = &schedLogger

	a.fetcher, err = schedules.New(schedCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("wire fetcher: %w", err)
	}

	return a, nil
}

// Close releases the redis connection, if any.
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
