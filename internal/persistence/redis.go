package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
)

var errRedisUnconfigured = errors.New("redis client not configured")

// Redis carries realtime room fan-out over pub/sub.
type Redis struct {
	Client *redis.Client
	logger *zap.Logger
}

// NewRedis builds the client. The server is probed once; an unreachable server
// is logged, not fatal, and realtime fan-out degrades until it comes back.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis; realtime updates degraded", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}
	return &Redis{Client: client, logger: logger}
}

// Close closes the client.
func (r *Redis) Close() {
	if r == nil || r.Client == nil {
		return
	}
	if err := r.Client.Close(); err != nil && r.logger != nil {
		r.logger.Warn("close redis", zap.Error(err))
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errRedisUnconfigured
	}
	return r.Client.Ping(ctx).Err()
}

// Publish sends payload on channel and returns the number of subscribers that
// received it.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	if r == nil || r.Client == nil {
		return 0, errRedisUnconfigured
	}
	return r.Client.Publish(ctx, channel, payload).Result()
}
