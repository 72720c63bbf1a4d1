package changefeed

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/productdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("product.changefeed",
	fx.Provide(NewHub),
	fx.Provide(provideNotifier),
)

func provideNotifier(lc fx.Lifecycle, cfg config.Config, hub *Hub, log *zap.Logger) Notifier {
	if cfg.RedisAddr == "" {
		log.Info("change feed running in-process only")
		return hub
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	bridge := NewRedisBridge(hub, client, log)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return err
			}
			return bridge.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			err := bridge.Stop(ctx)
			_ = client.Close()
			return err
		},
	})

	return bridge
}
