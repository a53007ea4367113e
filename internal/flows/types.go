package flows

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a chatbot or session does not exist.
var ErrNotFound = errors.New("not found")

// Chatbot is a stored flow definition.
type Chatbot struct {
	ID        string
	CompanyID string
	Name      string
	Graph     Graph
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is the per-conversation cursor into a chatbot graph. At most one
// live session exists per conversation.
type Session struct {
	ID             string
	ChatbotID      string
	ConversationID string
	CurrentNodeID  string
	Completed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Result reports what the engine did with an inbound message.
type Result struct {
	// Handled is true when the flow produced a reply or consumed the
	// message. A false value tells the caller to try the next responder.
	Handled bool
	// TransferToAI is set when the walk hit a transfer_to_ai_agent action.
	TransferToAI bool
	// TransferToHuman is set when the walk hit a transfer_to_human action.
	TransferToHuman bool
}
