package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/konvohq/konvo/internal/agents"
)

// Router owns all conversation ownership transitions. The flow engine and the
// AI responder only request a transfer; this is the one place that applies it.
type Router struct {
	conversations ConversationStore
	agents        agents.Pool
	logger        *slog.Logger
}

func NewRouter(conversationStore ConversationStore, agentPool agents.Pool, logger *slog.Logger) *Router {
	return &Router{
		conversations: conversationStore,
		agents:        agentPool,
		logger:        logger.With(slog.String("service", "router")),
	}
}

// TransferToHuman assigns a random active human agent, clears AI ownership,
// and marks the takeover that keeps automation away from the conversation.
// With no active agents the conversation stays taken over but unassigned, so
// it is visible to everyone on the dashboard.
func (r *Router) TransferToHuman(ctx context.Context, conversationID, companyID string) error {
	agent, ok, err := r.agents.PickOne(ctx, companyID)
	if err != nil {
		return fmt.Errorf("pick human agent: %w", err)
	}
	assigned := []string{}
	if ok {
		assigned = []string{agent.ID}
	}
	if err := r.conversations.AssignAgents(ctx, conversationID, assigned); err != nil {
		return fmt.Errorf("transfer to human: %w", err)
	}
	r.logger.Info("conversation transferred to human",
		slog.String("conversation_id", conversationID),
		slog.Bool("assigned", ok))
	return nil
}

// AdoptAgent records that an AI agent now owns the conversation.
func (r *Router) AdoptAgent(ctx context.Context, conversationID, agentID string) error {
	if err := r.conversations.SetAIOwner(ctx, conversationID, agentID); err != nil {
		return fmt.Errorf("adopt ai agent: %w", err)
	}
	r.logger.Info("conversation adopted by ai agent",
		slog.String("conversation_id", conversationID),
		slog.String("ai_agent_id", agentID))
	return nil
}
