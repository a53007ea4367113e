package conversations

import "time"

// Status values the pipeline cares about. Terminal states beyond open are
// opaque here; the dashboard owns closing.
const StatusOpen = "open"

// Conversation is one continuous exchange between a contact and the company over one channel.
type Conversation struct {
	ID                 string
	CompanyID          string
	ChannelID          string
	ContactID          string
	Status             string
	HandledByAIAgentID string
	AssignedAgentIDs   []string
	HumanTakeover      bool
	LastMessageAt      time.Time
	LastInboundAt      time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsOpen reports whether the conversation still accepts automation.
func (c Conversation) IsOpen() bool { return c.Status == StatusOpen }

// OwnerKind is the variant tag for conversation ownership.
type OwnerKind string

const (
	OwnerUnassigned OwnerKind = "unassigned"
	OwnerAI         OwnerKind = "ai"
	OwnerHuman      OwnerKind = "human"
)

// Owner is the explicit ownership variant derived from the conversation row.
type Owner struct {
	Kind     OwnerKind
	AIAgent  string
	AgentIDs []string
}

// OwnerOf derives the ownership variant. Only a recorded takeover makes a
// conversation human-owned; the default assignee picked at creation is a
// dashboard hint, not ownership. HumanTakeover stays true even when no agent
// was available to take the handoff.
func OwnerOf(c Conversation) Owner {
	if c.HumanTakeover {
		return Owner{Kind: OwnerHuman, AgentIDs: c.AssignedAgentIDs}
	}
	if c.HandledByAIAgentID != "" {
		return Owner{Kind: OwnerAI, AIAgent: c.HandledByAIAgentID}
	}
	return Owner{Kind: OwnerUnassigned}
}

// CreateRequest captures a new conversation's initial ownership.
type CreateRequest struct {
	CompanyID          string
	ChannelID          string
	ContactID          string
	HandledByAIAgentID string
	AssignedAgentIDs   []string
}
