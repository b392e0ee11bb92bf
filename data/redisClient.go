package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/redis/go-redis/v9"
)

const (
	redisConnAttempts = 5
	redisRetryDelay   = time.Second
)

// NewRedisClient backs both the market-data cache and the chat sessions.
func NewRedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.ReadTimeout,
	})

	var err error
	for attempt := 1; attempt <= redisConnAttempts; attempt++ {
		var pong string
		pong, err = rdb.Ping(ctx).Result()
		if err == nil {
			slog.Info("Redis connected", slog.String("pong", pong), slog.Int("db", cfg.Redis.DB))
			return rdb
		}

		slog.Info("Redis is trying to connect", slog.Int("attempts left", redisConnAttempts-attempt), slog.String("err", err.Error()))
		time.Sleep(redisRetryDelay)
	}

	slog.Error("Error while connecting Redis", slog.String("error", err.Error()))
	panic(err)
}
