package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// notUnderstood prefixes the re-prompt when no option matches.
const notUnderstood = "Sorry, I didn't understand that."

// ChatbotStore loads flow definitions.
type ChatbotStore interface {
	GetChatbot(ctx context.Context, id string) (Chatbot, error)
}

// SessionStore persists the per-conversation cursor.
type SessionStore interface {
	FindLiveSession(ctx context.Context, conversationID string) (Session, error)
	CreateSession(ctx context.Context, chatbotID, conversationID, nodeID string) (Session, error)
	AdvanceSession(ctx context.Context, sessionID, nodeID string) error
	CompleteSession(ctx context.Context, sessionID string) error
}

// Messenger sends a flow reply back into the conversation.
type Messenger interface {
	Reply(ctx context.Context, conversationID, senderLabel, text string) error
}

// AdvanceRequest identifies the conversation and the channel's configured bot.
type AdvanceRequest struct {
	ConversationID string
	// ChatbotID is the channel's configured chatbot, empty when none is set.
	ChatbotID string
}

// Engine walks a chatbot graph one inbound message at a time.
type Engine struct {
	chatbots  ChatbotStore
	sessions  SessionStore
	messenger Messenger
	logger    *slog.Logger
}

func NewEngine(chatbots ChatbotStore, sessions SessionStore, messenger Messenger, logger *slog.Logger) *Engine {
	return &Engine{
		chatbots:  chatbots,
		sessions:  sessions,
		messenger: messenger,
		logger:    logger.With(slog.String("service", "flow_engine")),
	}
}

// Advance feeds one inbound message to the conversation's flow. When no live
// session exists and the channel has a chatbot, a session is opened at the
// start node and its message is sent; otherwise the text is matched against
// the current node's options. A no-match re-prompts the same node. Stored
// references that no longer resolve complete the session and yield an
// unhandled result so the caller can fall through to the next responder.
func (e *Engine) Advance(ctx context.Context, req AdvanceRequest, text string) (Result, error) {
	session, err := e.sessions.FindLiveSession(ctx, req.ConversationID)
	if errors.Is(err, ErrNotFound) {
		return e.start(ctx, req)
	}
	if err != nil {
		return Result{}, fmt.Errorf("flow advance: %w", err)
	}

	bot, err := e.chatbots.GetChatbot(ctx, session.ChatbotID)
	if err != nil {
		// The bot behind a live session is gone or undecodable. Close the
		// session and let the message fall through.
		e.logger.Warn("live session has unusable chatbot",
			slog.String("session_id", session.ID),
			slog.String("chatbot_id", session.ChatbotID),
			slog.Any("error", err))
		return Result{}, e.sessions.CompleteSession(ctx, session.ID)
	}

	node, ok := bot.Graph.Node(session.CurrentNodeID)
	if !ok {
		e.logger.Warn("session points at missing node",
			slog.String("session_id", session.ID),
			slog.String("node_id", session.CurrentNodeID))
		return Result{}, e.sessions.CompleteSession(ctx, session.ID)
	}
	if len(node.Options) == 0 {
		// Terminal node whose action already ran, or a bare dead end.
		return Result{}, e.sessions.CompleteSession(ctx, session.ID)
	}

	option, matched := matchOption(node.Options, text)
	if !matched {
		prompt := notUnderstood + "\n\n" + nodePrompt(node)
		if err := e.messenger.Reply(ctx, req.ConversationID, bot.Name, prompt); err != nil {
			return Result{}, fmt.Errorf("flow reprompt: %w", err)
		}
		return Result{Handled: true}, nil
	}

	next, ok := bot.Graph.Node(option.NextNodeID)
	if !ok {
		e.logger.Warn("option references missing node",
			slog.String("session_id", session.ID),
			slog.String("next_node_id", option.NextNodeID))
		return Result{}, e.sessions.CompleteSession(ctx, session.ID)
	}

	if err := e.sessions.AdvanceSession(ctx, session.ID, next.ID); err != nil {
		return Result{}, fmt.Errorf("flow advance: %w", err)
	}
	return e.enterNode(ctx, req.ConversationID, bot, session.ID, next)
}

// start opens a session at the graph's start node and sends its message.
func (e *Engine) start(ctx context.Context, req AdvanceRequest) (Result, error) {
	if req.ChatbotID == "" {
		return Result{}, nil
	}
	bot, err := e.chatbots.GetChatbot(ctx, req.ChatbotID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		e.logger.Warn("chatbot unusable, skipping flow",
			slog.String("chatbot_id", req.ChatbotID),
			slog.Any("error", err))
		return Result{}, nil
	}

	start, ok := bot.Graph.Node(bot.Graph.StartNodeID)
	if !ok {
		e.logger.Warn("chatbot start node missing",
			slog.String("chatbot_id", bot.ID),
			slog.String("start_node_id", bot.Graph.StartNodeID))
		return Result{}, nil
	}

	session, err := e.sessions.CreateSession(ctx, bot.ID, req.ConversationID, start.ID)
	if err != nil {
		return Result{}, fmt.Errorf("flow start: %w", err)
	}
	return e.enterNode(ctx, req.ConversationID, bot, session.ID, start)
}

// enterNode sends the node's message and runs its action if it carries one.
func (e *Engine) enterNode(ctx context.Context, conversationID string, bot Chatbot, sessionID string, node Node) (Result, error) {
	if err := e.messenger.Reply(ctx, conversationID, bot.Name, nodePrompt(node)); err != nil {
		return Result{}, fmt.Errorf("flow reply: %w", err)
	}
	if node.Action == nil {
		return Result{Handled: true}, nil
	}

	if err := e.sessions.CompleteSession(ctx, sessionID); err != nil {
		return Result{}, fmt.Errorf("flow action: %w", err)
	}
	switch node.Action.Type {
	case ActionTransferToHuman:
		return Result{Handled: true, TransferToHuman: true}, nil
	case ActionTransferToAI:
		// Hand the same message to the AI path, so not handled here.
		return Result{TransferToAI: true}, nil
	case ActionEndConversation:
		return Result{Handled: true}, nil
	default:
		e.logger.Warn("unknown flow action", slog.String("action", string(node.Action.Type)))
		return Result{Handled: true}, nil
	}
}

// nodePrompt renders a node's message with its options enumerated 1-indexed,
// one per line.
func nodePrompt(node Node) string {
	if len(node.Options) == 0 {
		return node.Message
	}
	var b strings.Builder
	b.WriteString(node.Message)
	for i, option := range node.Options {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, option.Label))
	}
	return b.String()
}

// matchOption returns the first option any of whose match tokens appears in
// the text, case-insensitively.
func matchOption(options []Option, text string) (Option, bool) {
	lowered := strings.ToLower(text)
	for _, option := range options {
		for _, token := range option.Match {
			if token == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(token)) {
				return option, true
			}
		}
	}
	return Option{}, false
}
