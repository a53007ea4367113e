// Package modules wires the application with fx.
package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/channel/adapters/instagram"
	"github.com/konvohq/konvo/internal/channel/adapters/webchat"
	"github.com/konvohq/konvo/internal/channel/adapters/whatsapp"
	"github.com/konvohq/konvo/internal/config"
	"github.com/konvohq/konvo/internal/db"
	"github.com/konvohq/konvo/internal/logger"
)

// ConfigPath carries the resolved config file path into the fx graph.
type ConfigPath string

var Infra = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideDBConn,
		provideChannelRegistry,
	),
)

func provideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideChannelRegistry(log *slog.Logger) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(whatsapp.NewAdapter(log))
	registry.MustRegister(instagram.NewAdapter(log))
	registry.MustRegister(webchat.NewAdapter())
	return registry
}
