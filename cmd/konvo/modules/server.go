package modules

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/config"
	"github.com/konvohq/konvo/internal/handlers"
	"github.com/konvohq/konvo/internal/pipeline"
	"github.com/konvohq/konvo/internal/server"
)

var Server = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideWebhookHandler),
		provideServerHandler(provideWidgetHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideWebhookHandler(log *slog.Logger, channels *channel.DBService, registry *channel.Registry, dispatcher *pipeline.Dispatcher) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(channels, registry, dispatcher, log)
}

func provideWidgetHandler(log *slog.Logger, cfg config.Config, channels *channel.DBService, orchestrator *pipeline.Orchestrator) *handlers.WidgetHandler {
	return handlers.NewWidgetHandler(channels, orchestrator, cfg.Auth.JWTSecret, cfg.Auth.VisitorTTL(), cfg.Pipeline.SyncTimeout(), log)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Handlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
