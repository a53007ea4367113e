// Package whatsapp adapts WhatsApp Business Cloud webhook payloads and outbound sends.
package whatsapp

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
		logger:       log.With(slog.String("adapter", "whatsapp")),
		graphBaseURL: defaultGraphBaseURL,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *Adapter) Type() channel.Type { return channel.TypeWhatsApp }

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Parse extracts text messages from a Cloud API webhook delivery. Non-text
// messages and status callbacks are ignored.
func (a *Adapter) Parse(cfg channel.Channel, body []byte) ([]channel.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook: %w", err)
	}
	var events []channel.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = strings.TrimSpace(contact.Profile.Name)
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				events = append(events, channel.InboundEvent{
					CompanyID:         cfg.CompanyID,
					ChannelID:         cfg.ID,
					Channel:           channel.TypeWhatsApp,
					ExternalSenderRef: strings.TrimSpace(msg.From),
					Text:              msg.Text.Body,
					ProviderMessageID: strings.TrimSpace(msg.ID),
					Hints:             channel.DisplayHints{DisplayName: names[msg.From]},
					ReceivedAt:        time.Now(),
				})
			}
		}
	}
	return events, nil
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

// Send posts a text message through the Cloud API using the channel's credentials.
func (a *Adapter) Send(ctx context.Context, cfg channel.Channel, recipientRef, text string) error {
	phoneNumberID := cfg.Credential("phone_number_id")
	token := cfg.Credential("access_token")
	if phoneNumberID == "" || token == "" {
		return fmt.Errorf("whatsapp channel %s missing credentials", cfg.ID)
	}
	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipientRef,
		Type:             "text",
		Text:             sendText{Body: text},
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", a.graphBaseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp send status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
