// Package instagram adapts Instagram Messaging webhook payloads and outbound sends.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/konvohq/konvo/internal/channel"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

type Adapter struct {
	logger       *slog.Logger
	graphBaseURL string
	http         *http.Client
}

func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:       log.With(slog.String("adapter", "instagram")),
		graphBaseURL: defaultGraphBaseURL,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *Adapter) Type() channel.Type { return channel.TypeInstagram }

type webhookPayload struct {
	Entry []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				MID    string `json:"mid"`
				Text   string `json:"text"`
				IsEcho bool   `json:"is_echo"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// Parse extracts text messages from an Instagram messaging webhook. Echoes of the
// page's own outbound messages are ignored.
func (a *Adapter) Parse(cfg channel.Channel, body []byte) ([]channel.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode instagram webhook: %w", err)
	}
	var events []channel.InboundEvent
	for _, entry := range payload.Entry {
		for _, messaging := range entry.Messaging {
			if messaging.Message.IsEcho || strings.TrimSpace(messaging.Message.Text) == "" {
				continue
			}
			events = append(events, channel.InboundEvent{
				CompanyID:         cfg.CompanyID,
				ChannelID:         cfg.ID,
				Channel:           channel.TypeInstagram,
				ExternalSenderRef: strings.TrimSpace(messaging.Sender.ID),
				Text:              messaging.Message.Text,
				ProviderMessageID: strings.TrimSpace(messaging.Message.MID),
				ReceivedAt:        time.Now(),
			})
		}
	}
	return events, nil
}

type sendRequest struct {
	Recipient recipientRef `json:"recipient"`
	Message   messageBody  `json:"message"`
}

type recipientRef struct {
	ID string `json:"id"`
}

type messageBody struct {
	Text string `json:"text"`
}

// Send posts a text message through the Graph messaging API.
func (a *Adapter) Send(ctx context.Context, cfg channel.Channel, recipient, text string) error {
	token := cfg.Credential("access_token")
	if token == "" {
		return fmt.Errorf("instagram channel %s missing access token", cfg.ID)
	}
	body, err := json.Marshal(sendRequest{
		Recipient: recipientRef{ID: recipient},
		Message:   messageBody{Text: text},
	})
	if err != nil {
		return err
	}
	url := a.graphBaseURL + "/me/messages?access_token=" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("instagram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("instagram send status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
