// Package cache provides the optional Redis client backing the shared asset
// cache used by the worker and server.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"douyin-image-miner/config"
)

// Options builds client options from cfg. ok is false when REDIS_HOST is unset.
func Options(cfg *config.Config) (opts *redis.Options, ok bool) {
	if strings.TrimSpace(cfg.RedisHost) == "" {
		return nil, false
	}
	opts = &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Username: strings.TrimSpace(cfg.RedisUser),
		Password: cfg.RedisPassword,
	}
	if strings.EqualFold(strings.TrimSpace(cfg.RedisScheme), "rediss") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, true
}

// NewRedis returns nil when Redis is not configured; callers fall back to a
// local cache.
func NewRedis(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (*redis.Client, error) {
	opts, ok := Options(cfg)
	if !ok {
		log.Infow("redis_disabled", "reason", "missing REDIS_HOST")
		return nil, nil
	}

	client := redis.NewClient(opts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return fmt.Errorf("redis ping failed: %w", err)
			}
			log.Infow("redis_connected", "addr", opts.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Close(); err != nil {
				log.Warnw("redis_close_failed", "err", err)
			}
			return nil
		},
	})

	return client, nil
}
