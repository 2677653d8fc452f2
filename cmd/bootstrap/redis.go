package bootstrap

import (
	"context"
	"log/slog"

	"loyalty-core/internal/pkg/clock"
	"loyalty-core/internal/pkg/config"
	"loyalty-core/internal/pkg/ratelimit"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var RedisModule = fx.Module("redis",
	fx.Provide(
		NewLimiter,
	),
)

// NewLimiter wires the referral rate limiter. Without a Redis address the
// in-process sliding window is used; correct for a single instance, and the
// deployment's call when running one.
func NewLimiter(lc fx.Lifecycle, cfg config.Config, clk clock.Clock) ratelimit.Limiter {
	if cfg.Redis.Addr == "" {
		slog.Info("no Redis address configured, using in-process rate limiter")
		return ratelimit.NewMemoryLimiter(clk)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})

	return ratelimit.NewRedisLimiter(client)
}
