// Package webchat adapts embedded web-chat widget messages. The widget posts a
// single message per request and waits for the pipeline's replies inline, so the
// adapter has no outbound sender; the handler records replies per request.
package webchat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/konvohq/konvo/internal/channel"
)

type Adapter struct{}

func NewAdapter() *Adapter { return &Adapter{} }

func (a *Adapter) Type() channel.Type { return channel.TypeWebchat }

type widgetMessage struct {
	VisitorRef string `json:"visitor_ref"`
	Email      string `json:"email"`
	Origin     string `json:"origin"`
	Name       string `json:"name"`
	MessageID  string `json:"message_id"`
	Text       string `json:"text"`
}

// Parse normalizes one widget message. The sender ref is synthesized: email when
// present, else origin domain plus the widget's visitor ref, so returning visitors
// dedupe by email first.
func (a *Adapter) Parse(cfg channel.Channel, body []byte) ([]channel.InboundEvent, error) {
	var msg widgetMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode webchat message: %w", err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, nil
	}
	ref := SenderRef(msg.Email, msg.Origin, msg.VisitorRef)
	if ref == "" {
		return nil, fmt.Errorf("webchat message missing visitor identity")
	}
	return []channel.InboundEvent{{
		CompanyID:         cfg.CompanyID,
		ChannelID:         cfg.ID,
		Channel:           channel.TypeWebchat,
		ExternalSenderRef: ref,
		Text:              msg.Text,
		ProviderMessageID: strings.TrimSpace(msg.MessageID),
		Hints: channel.DisplayHints{
			DisplayName:  strings.TrimSpace(msg.Name),
			Email:        strings.ToLower(strings.TrimSpace(msg.Email)),
			OriginDomain: strings.ToLower(strings.TrimSpace(msg.Origin)),
		},
		ReceivedAt: time.Now(),
	}}, nil
}

// SenderRef builds the channel-scoped external ref for a web visitor.
func SenderRef(email, origin, visitorRef string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		return "email:" + email
	}
	origin = strings.ToLower(strings.TrimSpace(origin))
	visitorRef = strings.TrimSpace(visitorRef)
	if visitorRef == "" {
		return ""
	}
	if origin != "" {
		return "visitor:" + origin + ":" + visitorRef
	}
	return "visitor:" + visitorRef
}
