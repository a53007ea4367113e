package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/konvohq/konvo/internal/channel"
)

// maxWebhookBody bounds how much of a provider payload is read.
const maxWebhookBody = 1 << 20

// ChannelStore loads channel configuration for webhook verification.
type ChannelStore interface {
	GetByID(ctx context.Context, channelID string) (channel.Channel, error)
}

// Enqueuer hands parsed events to the background pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, event channel.InboundEvent) error
}

// WebhookHandler receives WhatsApp and Instagram webhook deliveries. It
// acknowledges the provider as soon as the payload is parsed and enqueued;
// pipeline failures never surface here, so the provider does not retry
// because automation broke.
type WebhookHandler struct {
	channels   ChannelStore
	registry   *channel.Registry
	dispatcher Enqueuer
	logger     *slog.Logger
}

func NewWebhookHandler(channels ChannelStore, registry *channel.Registry, dispatcher Enqueuer, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		channels:   channels,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     log.With(slog.String("handler", "webhooks")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/:channel_id", h.Verify)
	e.POST("/webhooks/:channel_id", h.Receive)
}

// Verify answers Meta's subscription handshake: the configured verify token
// must match, and the challenge is echoed back verbatim.
func (h *WebhookHandler) Verify(c echo.Context) error {
	cfg, err := h.loadChannel(c)
	if err != nil {
		return err
	}
	if c.QueryParam("hub.mode") != "subscribe" {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported hub.mode")
	}
	if token := cfg.Credential("verify_token"); token == "" || c.QueryParam("hub.verify_token") != token {
		return echo.NewHTTPError(http.StatusForbidden, "verify token mismatch")
	}
	return c.String(http.StatusOK, c.QueryParam("hub.challenge"))
}

// Receive parses a webhook delivery and enqueues each inbound message.
func (h *WebhookHandler) Receive(c echo.Context) error {
	cfg, err := h.loadChannel(c)
	if err != nil {
		return err
	}
	adapter, ok := h.registry.GetAdapter(cfg.Type)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "channel type has no adapter")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read payload")
	}
	events, err := adapter.Parse(cfg, body)
	if err != nil {
		// A payload this channel cannot decode is logged and acked; the
		// provider retrying the same body would not help.
		h.logger.Warn("webhook payload not parseable",
			slog.String("channel_id", cfg.ID),
			slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}

	for _, event := range events {
		if err := h.dispatcher.Enqueue(c.Request().Context(), event); err != nil {
			h.logger.Error("inbound enqueue failed",
				slog.String("channel_id", cfg.ID),
				slog.Any("error", err))
		}
	}
	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) loadChannel(c echo.Context) (channel.Channel, error) {
	cfg, err := h.channels.GetByID(c.Request().Context(), c.Param("channel_id"))
	if err != nil {
		return channel.Channel{}, echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	if !cfg.Active {
		return channel.Channel{}, echo.NewHTTPError(http.StatusNotFound, "channel not active")
	}
	return cfg, nil
}
