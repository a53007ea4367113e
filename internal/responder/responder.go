// Package responder generates AI replies for conversations owned by an AI
// agent, including the keyword and sentinel paths that hand off to a human.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/konvohq/konvo/internal/aiagents"
	"github.com/konvohq/konvo/internal/conversations"
	"github.com/konvohq/konvo/internal/llm"
	"github.com/konvohq/konvo/internal/messages"
)

// TransferSentinel is the exact marker the model emits to request a human.
const TransferSentinel = "[TRANSFER_TO_HUMAN]"

// handoffNotice is sent when a transfer keyword routes the customer away
// from the AI.
const handoffNotice = "Thanks for your patience. We're connecting you with a member of our team who will follow up shortly."

// historyLimit caps how many stored turns are replayed into the prompt.
const historyLimit = 30

// AgentStore resolves AI agent configurations.
type AgentStore interface {
	GetByID(ctx context.Context, id string) (aiagents.Agent, error)
	FindActiveForChannel(ctx context.Context, channelID string) (aiagents.Agent, error)
}

// HistoryStore replays prior turns of a conversation, oldest first.
type HistoryStore interface {
	History(ctx context.Context, conversationID string, limit int) ([]messages.Message, error)
}

// Adopter records that an AI agent now owns the conversation.
type Adopter interface {
	AdoptAgent(ctx context.Context, conversationID, agentID string) error
}

// Messenger sends the generated reply back into the conversation.
type Messenger interface {
	Reply(ctx context.Context, conversationID, senderLabel, text string) error
}

// Result reports what the responder did with an inbound message.
type Result struct {
	// Handled is true when a reply was sent or the message was consumed.
	Handled bool
	// TransferToHuman is set on a keyword hit or a sentinel reply.
	TransferToHuman bool
}

// Request carries the resolved conversation and the inbound text.
type Request struct {
	Conversation conversations.Conversation
	ChannelID    string
	Text         string
}

// Responder answers inbound messages with an LLM, scoped to the agent
// configured for the channel or already owning the conversation.
type Responder struct {
	agents    AgentStore
	history   HistoryStore
	adopter   Adopter
	messenger Messenger
	completer llm.Completer
	logger    *slog.Logger
}

func New(agents AgentStore, history HistoryStore, adopter Adopter, messenger Messenger, completer llm.Completer, logger *slog.Logger) *Responder {
	return &Responder{
		agents:    agents,
		history:   history,
		adopter:   adopter,
		messenger: messenger,
		completer: completer,
		logger:    logger.With(slog.String("service", "responder")),
	}
}

// Respond resolves the agent for the conversation and generates a reply. A
// transfer keyword in the inbound text short-circuits before the model is
// called. Model failures and empty replies are swallowed so the caller can
// fall through to a human.
func (r *Responder) Respond(ctx context.Context, req Request) (Result, error) {
	agent, adopted, err := r.resolveAgent(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if agent == nil {
		return Result{}, nil
	}

	if keyword, hit := matchKeyword(agent.TransferKeywords, req.Text); hit {
		r.logger.Info("transfer keyword matched",
			slog.String("conversation_id", req.Conversation.ID),
			slog.String("keyword", keyword))
		if err := r.messenger.Reply(ctx, req.Conversation.ID, agent.Name, handoffNotice); err != nil {
			return Result{}, fmt.Errorf("send handoff notice: %w", err)
		}
		return Result{Handled: true, TransferToHuman: true}, nil
	}

	if !adopted {
		if err := r.adopter.AdoptAgent(ctx, req.Conversation.ID, agent.ID); err != nil {
			return Result{}, fmt.Errorf("adopt ai agent: %w", err)
		}
	}

	reply, err := r.generate(ctx, *agent, req)
	if err != nil {
		r.logger.Error("llm completion failed",
			slog.String("conversation_id", req.Conversation.ID),
			slog.String("agent_id", agent.ID),
			slog.Any("error", err))
		return Result{}, nil
	}

	transfer := strings.Contains(reply, TransferSentinel)
	if transfer {
		reply = strings.TrimSpace(strings.ReplaceAll(reply, TransferSentinel, ""))
	}
	if reply != "" {
		if err := r.messenger.Reply(ctx, req.Conversation.ID, agent.Name, reply); err != nil {
			return Result{}, fmt.Errorf("send ai reply: %w", err)
		}
	}
	if transfer {
		return Result{Handled: true, TransferToHuman: true}, nil
	}
	if reply == "" {
		return Result{}, nil
	}
	return Result{Handled: true}, nil
}

// resolveAgent prefers the agent already owning the conversation, falling back
// to the channel's active agent. adopted reports whether ownership is already
// recorded.
func (r *Responder) resolveAgent(ctx context.Context, req Request) (*aiagents.Agent, bool, error) {
	if id := req.Conversation.HandledByAIAgentID; id != "" {
		agent, err := r.agents.GetByID(ctx, id)
		if err == nil {
			if !agent.Active {
				return nil, false, nil
			}
			return &agent, true, nil
		}
		if !errors.Is(err, aiagents.ErrNotFound) {
			return nil, false, fmt.Errorf("resolve ai agent: %w", err)
		}
		// Owner row vanished, re-resolve from the channel.
	}

	agent, err := r.agents.FindActiveForChannel(ctx, req.ChannelID)
	if errors.Is(err, aiagents.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolve ai agent: %w", err)
	}
	return &agent, false, nil
}

func (r *Responder) generate(ctx context.Context, agent aiagents.Agent, req Request) (string, error) {
	prompt := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt(agent)}}

	history, err := r.history.History(ctx, req.Conversation.ID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Direction == messages.DirectionOutbound {
			role = llm.RoleAssistant
		}
		prompt = append(prompt, llm.Message{Role: role, Content: turn.Content})
	}
	// History already contains the persisted inbound message; only append the
	// text when it has not been stored yet.
	if len(history) == 0 || history[len(history)-1].Content != req.Text {
		prompt = append(prompt, llm.Message{Role: llm.RoleUser, Content: req.Text})
	}

	reply, err := r.completer.Complete(ctx, llm.Request{
		Model:       agent.Model,
		Temperature: agent.Temperature,
		Messages:    prompt,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func systemPrompt(agent aiagents.Agent) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	if agent.ContextInfo != "" {
		b.WriteString("\n\nBusiness context:\n")
		b.WriteString(agent.ContextInfo)
	}
	b.WriteString("\n\nIf the customer asks to speak with a human, or you cannot help them, reply with exactly ")
	b.WriteString(TransferSentinel)
	b.WriteString(" and nothing else.")
	return b.String()
}

// matchKeyword reports the first transfer keyword appearing in the text,
// case-insensitively.
func matchKeyword(keywords []string, text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		trimmed := strings.TrimSpace(keyword)
		if trimmed == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(trimmed)) {
			return trimmed, true
		}
	}
	return "", false
}
