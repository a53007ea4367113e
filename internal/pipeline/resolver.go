// Package pipeline ties inbound channel events to contacts and conversations
// and routes each message through the chatbot flow, the AI responder, or a
// human agent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/konvohq/konvo/internal/agents"
	"github.com/konvohq/konvo/internal/aiagents"
	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/contacts"
	"github.com/konvohq/konvo/internal/conversations"
)

// ContactStore is the resolver's view of contact persistence.
type ContactStore interface {
	Find(ctx context.Context, companyID, channelType, externalRef string) (contacts.Contact, error)
	Create(ctx context.Context, req contacts.CreateRequest) (contacts.Contact, error)
}

// ConversationStore is the pipeline's view of conversation persistence.
type ConversationStore interface {
	FindOpenByContact(ctx context.Context, companyID, contactID string) (conversations.Conversation, error)
	Create(ctx context.Context, req conversations.CreateRequest) (conversations.Conversation, error)
	AssignAgents(ctx context.Context, conversationID string, agentIDs []string) error
	SetAIOwner(ctx context.Context, conversationID, aiAgentID string) error
	TouchInbound(ctx context.Context, conversationID string) error
	TouchOutbound(ctx context.Context, conversationID string) error
}

// AgentFinder resolves the AI agent serving a channel.
type AgentFinder interface {
	FindActiveForChannel(ctx context.Context, channelID string) (aiagents.Agent, error)
}

// Resolver maps an inbound event to its contact and open conversation,
// creating either on first contact.
type Resolver struct {
	contacts      ContactStore
	conversations ConversationStore
	aiAgents      AgentFinder
	agents        agents.Pool
	logger        *slog.Logger
}

func NewResolver(contactStore ContactStore, conversationStore ConversationStore, aiAgents AgentFinder, agentPool agents.Pool, logger *slog.Logger) *Resolver {
	return &Resolver{
		contacts:      contactStore,
		conversations: conversationStore,
		aiAgents:      aiAgents,
		agents:        agentPool,
		logger:        logger.With(slog.String("service", "resolver")),
	}
}

// Resolve returns the contact and open conversation for an inbound event. No
// lock is held across the run; before creating a conversation the open lookup
// is repeated, so a concurrent first message usually lands in one
// conversation. The residual race makes a rare duplicate the dashboard
// surfaces, not a pipeline failure.
func (r *Resolver) Resolve(ctx context.Context, event channel.InboundEvent) (contacts.Contact, conversations.Conversation, error) {
	contact, err := r.resolveContact(ctx, event)
	if err != nil {
		return contacts.Contact{}, conversations.Conversation{}, err
	}

	conversation, err := r.conversations.FindOpenByContact(ctx, event.CompanyID, contact.ID)
	if err == nil {
		return contact, conversation, nil
	}
	if !errors.Is(err, conversations.ErrNotFound) {
		return contacts.Contact{}, conversations.Conversation{}, fmt.Errorf("resolve conversation: %w", err)
	}

	req, err := r.initialOwnership(ctx, event)
	if err != nil {
		return contacts.Contact{}, conversations.Conversation{}, err
	}
	req.CompanyID = event.CompanyID
	req.ChannelID = event.ChannelID
	req.ContactID = contact.ID

	// Re-check right before inserting, to shrink the window where two
	// concurrent first messages both create a conversation.
	conversation, err = r.conversations.FindOpenByContact(ctx, event.CompanyID, contact.ID)
	if err == nil {
		return contact, conversation, nil
	}
	if !errors.Is(err, conversations.ErrNotFound) {
		return contacts.Contact{}, conversations.Conversation{}, fmt.Errorf("resolve conversation: %w", err)
	}

	conversation, err = r.conversations.Create(ctx, req)
	if err != nil {
		return contacts.Contact{}, conversations.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	r.logger.Info("conversation opened",
		slog.String("conversation_id", conversation.ID),
		slog.String("contact_id", contact.ID),
		slog.String("channel_id", event.ChannelID))
	return contact, conversation, nil
}

func (r *Resolver) resolveContact(ctx context.Context, event channel.InboundEvent) (contacts.Contact, error) {
	channelType := string(event.Channel)
	contact, err := r.contacts.Find(ctx, event.CompanyID, channelType, event.ExternalSenderRef)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, contacts.ErrNotFound) {
		return contacts.Contact{}, fmt.Errorf("resolve contact: %w", err)
	}

	contact, err = r.contacts.Create(ctx, contacts.CreateRequest{
		CompanyID:     event.CompanyID,
		ChannelType:   channelType,
		ExternalRef:   event.ExternalSenderRef,
		DisplayName:   displayName(event),
		OriginChannel: event.ChannelID,
	})
	if err != nil {
		return contacts.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	r.logger.Info("contact created",
		slog.String("contact_id", contact.ID),
		slog.String("channel_type", channelType))
	return contact, nil
}

// initialOwnership picks who a brand-new conversation starts with: the
// channel's active AI agent when one is configured, else a random active
// human agent, else nobody. A human picked here is a default assignee for the
// dashboard and does not block automation; only a later takeover does.
func (r *Resolver) initialOwnership(ctx context.Context, event channel.InboundEvent) (conversations.CreateRequest, error) {
	agent, err := r.aiAgents.FindActiveForChannel(ctx, event.ChannelID)
	if err == nil {
		return conversations.CreateRequest{HandledByAIAgentID: agent.ID}, nil
	}
	if !errors.Is(err, aiagents.ErrNotFound) {
		return conversations.CreateRequest{}, fmt.Errorf("resolve initial owner: %w", err)
	}

	human, ok, err := r.agents.PickOne(ctx, event.CompanyID)
	if err != nil {
		return conversations.CreateRequest{}, fmt.Errorf("resolve initial owner: %w", err)
	}
	if !ok {
		return conversations.CreateRequest{}, nil
	}
	return conversations.CreateRequest{AssignedAgentIDs: []string{human.ID}}, nil
}

func displayName(event channel.InboundEvent) string {
	if event.Hints.DisplayName != "" {
		return event.Hints.DisplayName
	}
	if event.Hints.Email != "" {
		return event.Hints.Email
	}
	return event.ExternalSenderRef
}
