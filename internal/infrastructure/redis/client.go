package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyunsookim/commerce/internal/infrastructure/config"
	"github.com/hyunsookim/commerce/pkg/retry"
)

// NewClient creates a new Redis client, retrying the initial ping with backoff
// so worker startup tolerates a slow Redis.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	retryCfg := retry.Config{
		MaxAttempts:  uint(cfg.ConnectRetries),
		InitialDelay: cfg.ConnectRetryDelay,
		MaxDelay:     30 * time.Second,
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg.MaxAttempts = 5
	}
	if retryCfg.InitialDelay <= 0 {
		retryCfg.InitialDelay = time.Second
	}

	if err := retry.Do(ctx, retryCfg, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
