package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis — фиксированное окно в Redis, общее для всех экземпляров сервиса.
// При недоступности Redis запрос пропускается.
type Redis struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedis создаёт ограничитель поверх клиента Redis.
func NewRedis(client redis.Cmdable, limit int, window time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ac:ratelimit:",
		logger: logger.With(slog.String("component", "ratelimit_redis")),
	}
}

// Allow увеличивает счётчик окна и проверяет лимит.
func (l *Redis) Allow(ctx context.Context, key string) bool {
	redisKey := l.prefix + key

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		// Окно открывается первым запросом; TTL не продлевается (Redis 7+)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		l.logger.Warn("Redis недоступен, ограничение частоты пропущено",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	return incr.Val() <= l.limit
}

// Ping проверяет доступность Redis.
func (l *Redis) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
