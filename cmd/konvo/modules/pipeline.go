package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/konvohq/konvo/internal/agents"
	"github.com/konvohq/konvo/internal/aiagents"
	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/config"
	"github.com/konvohq/konvo/internal/contacts"
	"github.com/konvohq/konvo/internal/conversations"
	"github.com/konvohq/konvo/internal/flows"
	"github.com/konvohq/konvo/internal/llm"
	"github.com/konvohq/konvo/internal/maintenance"
	"github.com/konvohq/konvo/internal/messages"
	"github.com/konvohq/konvo/internal/pipeline"
)

var Pipeline = fx.Module(
	"pipeline",
	fx.Provide(
		pipeline.NewDBDedupStore,
		provideResolver,
		provideRouter,
		provideOrchestrator,
		provideDispatcher,
		provideSweeper,
	),
	fx.Invoke(startSweeper),
)

func provideResolver(
	log *slog.Logger,
	contactStore *contacts.DBService,
	conversationStore *conversations.DBService,
	aiAgents *aiagents.DBService,
	agentPool agents.Pool,
) *pipeline.Resolver {
	return pipeline.NewResolver(contactStore, conversationStore, aiAgents, agentPool, log)
}

func provideRouter(
	log *slog.Logger,
	conversationStore *conversations.DBService,
	agentPool agents.Pool,
) *pipeline.Router {
	return pipeline.NewRouter(conversationStore, agentPool, log)
}

func provideOrchestrator(
	log *slog.Logger,
	channels *channel.DBService,
	dedup *pipeline.DBDedupStore,
	resolver *pipeline.Resolver,
	router *pipeline.Router,
	conversationStore *conversations.DBService,
	messageStore *messages.DBService,
	flowStore *flows.DBService,
	aiAgents *aiagents.DBService,
	completer llm.Completer,
	registry *channel.Registry,
) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		channels,
		dedup,
		resolver,
		router,
		conversationStore,
		messageStore,
		flowStore,
		flowStore,
		aiAgents,
		completer,
		registry,
		log,
	)
}

func provideDispatcher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, orchestrator *pipeline.Orchestrator) *pipeline.Dispatcher {
	dispatcher := pipeline.NewDispatcher(orchestrator, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			dispatcher.Stop()
			return nil
		},
	})
	return dispatcher
}

func provideSweeper(log *slog.Logger, cfg config.Config, dedup *pipeline.DBDedupStore) *maintenance.Sweeper {
	return maintenance.NewSweeper(dedup, cfg.Pipeline.SweepSchedule, cfg.Pipeline.EventTTL(), log)
}

func startSweeper(lc fx.Lifecycle, sweeper *maintenance.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sweeper.Start()
		},
		OnStop: func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}
