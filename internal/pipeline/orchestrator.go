package pipeline

import (
	"context"
	"log/slog"

	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/conversations"
	"github.com/konvohq/konvo/internal/flows"
	"github.com/konvohq/konvo/internal/llm"
	"github.com/konvohq/konvo/internal/messages"
	"github.com/konvohq/konvo/internal/responder"
)

// ChannelStore loads channel configuration.
type ChannelStore interface {
	GetByID(ctx context.Context, channelID string) (channel.Channel, error)
}

// Orchestrator runs the automation pipeline for one inbound event: dedup,
// identity resolution, inbound persistence, then the channel's priority order
// of flow engine and AI responder.
type Orchestrator struct {
	channels      ChannelStore
	dedup         DedupStore
	resolver      *Resolver
	router        *Router
	conversations ConversationStore
	msgs          MessageStore
	chatbots      flows.ChatbotStore
	sessions      flows.SessionStore
	aiAgents      responder.AgentStore
	completer     llm.Completer
	registry      *channel.Registry
	logger        *slog.Logger
}

func NewOrchestrator(
	channels ChannelStore,
	dedup DedupStore,
	resolver *Resolver,
	router *Router,
	conversationStore ConversationStore,
	messageStore MessageStore,
	chatbots flows.ChatbotStore,
	sessions flows.SessionStore,
	aiAgents responder.AgentStore,
	completer llm.Completer,
	registry *channel.Registry,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		channels:      channels,
		dedup:         dedup,
		resolver:      resolver,
		router:        router,
		conversations: conversationStore,
		msgs:          messageStore,
		chatbots:      chatbots,
		sessions:      sessions,
		aiAgents:      aiAgents,
		completer:     completer,
		registry:      registry,
		logger:        logger.With(slog.String("service", "pipeline")),
	}
}

// Process runs the full pipeline for one inbound event and returns the
// replies it produced, in send order. The synchronous web-chat path returns
// them inline; webhook paths ignore them.
func (o *Orchestrator) Process(ctx context.Context, event channel.InboundEvent) ([]string, error) {
	log := o.logger.With(
		slog.String("channel_id", event.ChannelID),
		slog.String("company_id", event.CompanyID))

	if event.ProviderMessageID != "" {
		fresh, err := o.dedup.MarkSeen(ctx, event.ChannelID, event.ProviderMessageID)
		if err != nil {
			return nil, err
		}
		if !fresh {
			log.Info("duplicate delivery skipped",
				slog.String("provider_message_id", event.ProviderMessageID))
			return nil, nil
		}
	}

	cfg, err := o.channels.GetByID(ctx, event.ChannelID)
	if err != nil {
		return nil, err
	}

	contact, conversation, err := o.resolver.Resolve(ctx, event)
	if err != nil {
		return nil, err
	}

	text := event.ClampedText()
	if _, err := o.msgs.Persist(ctx, messages.PersistInput{
		ConversationID:    conversation.ID,
		Direction:         messages.DirectionInbound,
		SenderLabel:       contact.DisplayName,
		Content:           text,
		ProviderMessageID: event.ProviderMessageID,
	}); err != nil {
		return nil, err
	}
	if err := o.conversations.TouchInbound(ctx, conversation.ID); err != nil {
		return nil, err
	}

	// A conversation a human took over gets no automation; the message is
	// stored for the assigned agents. A default assignee picked at creation
	// does not count as a takeover, so the first message still reaches the
	// flow engine and the responder.
	if conversations.OwnerOf(conversation).Kind == conversations.OwnerHuman {
		return nil, nil
	}

	out := &outbox{
		messages:      o.msgs,
		conversations: o.conversations,
		cfg:           cfg,
		recipientRef:  event.ExternalSenderRef,
		logger:        log,
	}
	if sender, ok := o.registry.GetSender(cfg.Type); ok {
		out.sender = sender
	}

	if err := o.automate(ctx, cfg, conversation, text, out); err != nil {
		return out.replies, err
	}
	return out.replies, nil
}

// automate applies the channel's automation priority. CHATBOT_FIRST falls
// through to the AI responder when the flow declines or requests it; AI_FIRST
// falls back to the flow only when no AI agent could answer at all.
func (o *Orchestrator) automate(ctx context.Context, cfg channel.Channel, conversation conversations.Conversation, text string, out *outbox) error {
	engine := flows.NewEngine(o.chatbots, o.sessions, out, o.logger)
	respond := responder.New(o.aiAgents, o.msgs, o.router, out, o.completer, o.logger)

	advanceReq := flows.AdvanceRequest{
		ConversationID: conversation.ID,
		ChatbotID:      cfg.ChatbotID,
	}
	respondReq := responder.Request{
		Conversation: conversation,
		ChannelID:    cfg.ID,
		Text:         text,
	}

	if cfg.Priority == channel.PriorityAIFirst {
		res, err := respond.Respond(ctx, respondReq)
		if err != nil {
			return err
		}
		if res.TransferToHuman {
			return o.router.TransferToHuman(ctx, conversation.ID, cfg.CompanyID)
		}
		if res.Handled {
			return nil
		}
		flowRes, err := engine.Advance(ctx, advanceReq, text)
		if err != nil {
			return err
		}
		if flowRes.TransferToHuman {
			return o.router.TransferToHuman(ctx, conversation.ID, cfg.CompanyID)
		}
		return nil
	}

	flowRes, err := engine.Advance(ctx, advanceReq, text)
	if err != nil {
		return err
	}
	if flowRes.TransferToHuman {
		return o.router.TransferToHuman(ctx, conversation.ID, cfg.CompanyID)
	}
	if flowRes.Handled && !flowRes.TransferToAI {
		return nil
	}
	res, err := respond.Respond(ctx, respondReq)
	if err != nil {
		return err
	}
	if res.TransferToHuman {
		return o.router.TransferToHuman(ctx, conversation.ID, cfg.CompanyID)
	}
	return nil
}
