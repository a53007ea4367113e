package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/konvohq/konvo/internal/auth"
	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/channel/adapters/webchat"
)

// Runner runs the pipeline synchronously and returns the replies it produced.
type Runner interface {
	Process(ctx context.Context, event channel.InboundEvent) ([]string, error)
}

// WidgetHandler serves the embedded web-chat widget. Unlike the webhook
// channels it waits for the pipeline and returns the generated replies in the
// same response.
type WidgetHandler struct {
	channels    ChannelStore
	runner      Runner
	jwtSecret   string
	visitorTTL  time.Duration
	syncTimeout time.Duration
	logger      *slog.Logger
}

func NewWidgetHandler(channels ChannelStore, runner Runner, jwtSecret string, visitorTTL, syncTimeout time.Duration, log *slog.Logger) *WidgetHandler {
	if visitorTTL <= 0 {
		visitorTTL = 30 * 24 * time.Hour
	}
	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}
	return &WidgetHandler{
		channels:    channels,
		runner:      runner,
		jwtSecret:   jwtSecret,
		visitorTTL:  visitorTTL,
		syncTimeout: syncTimeout,
		logger:      log.With(slog.String("handler", "widget")),
	}
}

func (h *WidgetHandler) Register(e *echo.Echo) {
	e.POST("/widget/:channel_id/session", h.StartSession)
	e.POST("/widget/:channel_id/messages", h.SendMessage)
}

type sessionRequest struct {
	VisitorRef string `json:"visitor_ref"`
	Email      string `json:"email"`
	Origin     string `json:"origin"`
}

type sessionResponse struct {
	Token      string    `json:"token"`
	VisitorRef string    `json:"visitor_ref"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// StartSession issues the signed visitor token the widget replays on every
// message. The sender ref is fixed here so the visitor keeps one contact
// identity for the token's lifetime.
func (h *WidgetHandler) StartSession(c echo.Context) error {
	cfg, err := h.loadWebchatChannel(c)
	if err != nil {
		return err
	}
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.VisitorRef) == "" {
		req.VisitorRef = uuid.NewString()
	}
	ref := webchat.SenderRef(req.Email, req.Origin, req.VisitorRef)

	token, expiresAt, err := auth.GenerateVisitorToken(auth.VisitorToken{
		CompanyID:  cfg.CompanyID,
		ChannelID:  cfg.ID,
		VisitorRef: ref,
	}, h.jwtSecret, h.visitorTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Token:      token,
		VisitorRef: req.VisitorRef,
		ExpiresAt:  expiresAt,
	})
}

type messageRequest struct {
	Token     string `json:"token"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Origin    string `json:"origin"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type messageResponse struct {
	Replies []string `json:"replies"`
}

// SendMessage runs the pipeline for one widget message and returns the
// replies inline. The run gets a hard timeout; the widget shows a fallback
// when automation takes too long.
func (h *WidgetHandler) SendMessage(c echo.Context) error {
	cfg, err := h.loadWebchatChannel(c)
	if err != nil {
		return err
	}
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	visitor, err := auth.ParseVisitorToken(h.bearerToken(c, req.Token), h.jwtSecret)
	if err != nil || visitor.ChannelID != cfg.ID {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid visitor token")
	}

	event := channel.InboundEvent{
		CompanyID:         cfg.CompanyID,
		ChannelID:         cfg.ID,
		Channel:           channel.TypeWebchat,
		ExternalSenderRef: visitor.VisitorRef,
		Text:              req.Text,
		ProviderMessageID: strings.TrimSpace(req.MessageID),
		Hints: channel.DisplayHints{
			DisplayName:  strings.TrimSpace(req.Name),
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			OriginDomain: strings.ToLower(strings.TrimSpace(req.Origin)),
		},
		ReceivedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.syncTimeout)
	defer cancel()
	replies, err := h.runner.Process(ctx, event)
	if err != nil {
		h.logger.Error("widget pipeline run failed",
			slog.String("channel_id", cfg.ID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "message processing failed")
	}
	if replies == nil {
		replies = []string{}
	}
	return c.JSON(http.StatusOK, messageResponse{Replies: replies})
}

func (h *WidgetHandler) loadWebchatChannel(c echo.Context) (channel.Channel, error) {
	cfg, err := h.channels.GetByID(c.Request().Context(), c.Param("channel_id"))
	if err != nil {
		return channel.Channel{}, echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	if !cfg.Active || cfg.Type != channel.TypeWebchat {
		return channel.Channel{}, echo.NewHTTPError(http.StatusNotFound, "channel not active")
	}
	return cfg, nil
}

func (h *WidgetHandler) bearerToken(c echo.Context, fallback string) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return fallback
}
