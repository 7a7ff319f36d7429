package cache

import (
	"context"
	"fmt"
	"time"

	"pointsystem/internal/config"

	"github.com/go-redis/redis/v8"
)

// OpenRedis connects and pings the redis server.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis %s: %w", cfg.Addr(), err)
	}
	return client, nil
}
