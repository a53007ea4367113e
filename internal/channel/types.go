// Package channel defines channel types, the adapter contracts, and the channel registry.
package channel

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Type identifies a messaging surface.
type Type string

const (
	TypeWhatsApp  Type = "whatsapp"
	TypeInstagram Type = "instagram"
	TypeWebchat   Type = "webchat"
)

func (t Type) String() string { return string(t) }

// ParseType normalizes and validates a channel type string.
func ParseType(raw string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeWhatsApp:
		return TypeWhatsApp, nil
	case TypeInstagram:
		return TypeInstagram, nil
	case TypeWebchat:
		return TypeWebchat, nil
	default:
		return "", fmt.Errorf("unsupported channel type: %s", raw)
	}
}

// Priority governs which automation layer attempts an inbound message first.
type Priority string

const (
	PriorityChatbotFirst Priority = "chatbot_first"
	PriorityAIFirst      Priority = "ai_first"
)

// ParsePriority normalizes a stored priority string, defaulting to chatbot-first.
func ParsePriority(raw string) Priority {
	if Priority(strings.ToLower(strings.TrimSpace(raw))) == PriorityAIFirst {
		return PriorityAIFirst
	}
	return PriorityChatbotFirst
}

// Channel is a configured communication surface with its own automation policy.
type Channel struct {
	ID          string
	CompanyID   string
	Type        Type
	DisplayName string
	Priority    Priority
	ChatbotID   string
	Active      bool
	Credentials map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credential returns a string credential by key, or "" when absent.
func (c Channel) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	value, _ := c.Credentials[key].(string)
	return strings.TrimSpace(value)
}

// MaxTextLength is the longest inbound text the pipeline accepts; longer payloads are clamped.
const MaxTextLength = 4096

// DisplayHints carries optional sender attributes used for contact display and web-chat dedup.
type DisplayHints struct {
	DisplayName  string
	Email        string
	OriginDomain string
}

// InboundEvent is the normalized form of one provider webhook delivery.
type InboundEvent struct {
	CompanyID         string
	ChannelID         string
	Channel           Type
	ExternalSenderRef string
	Text              string
	ProviderMessageID string
	Hints             DisplayHints
	ReceivedAt        time.Time
}

// ClampedText returns the event text trimmed and truncated to at most
// MaxTextLength bytes, never splitting a rune.
func (e InboundEvent) ClampedText() string {
	text := strings.TrimSpace(e.Text)
	if len(text) <= MaxTextLength {
		return text
	}
	cut := MaxTextLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
