// Package cache owns the process-wide Redis connection.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var Client *redis.Client

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// InitRedis connects to addr (host:port or a redis:// URL). Redis is optional:
// on an empty address or a failed ping it logs a warning and leaves Client nil.
func InitRedis(ctx context.Context, addr string, log zerolog.Logger) *redis.Client {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		log.Warn().Msg("REDIS_URL not set, caching disabled")
		return nil
	}

	opts, err := redisOptions(addr)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, caching disabled")
		return nil
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("redis unreachable, caching disabled")
		_ = client.Close()
		return nil
	}

	Client = client
	log.Info().Str("addr", opts.Addr).Msg("connected to Redis")
	return client
}

func redisOptions(addr string) (*redis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return parsed, nil
	}
	return &redis.Options{Addr: addr}, nil
}
