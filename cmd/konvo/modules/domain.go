package modules

import (
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
	"github.com/konvohq/konvo/internal/messages"
)

var Domain = fx.Module(
	"domain",
	fx.Provide(
		channel.NewService,
		contacts.NewService,
		conversations.NewService,
		aiagents.NewService,
		messages.NewService,
		flows.NewDBService,
		fx.Annotate(agents.NewPool, fx.As(new(agents.Pool))),
		provideCompleter,
	),
)

func provideCompleter(log *slog.Logger, cfg config.Config) (llm.Completer, error) {
	return llm.NewClient(log, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout(), cfg.LLM.RequestsPerSec, cfg.LLM.Burst)
}
