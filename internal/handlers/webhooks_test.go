package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konvohq/konvo/internal/channel"
)

type fakeChannelStore struct {
	channels map[string]channel.Channel
}

func (s *fakeChannelStore) GetByID(ctx context.Context, channelID string) (channel.Channel, error) {
	cfg, ok := s.channels[channelID]
	if !ok {
		return channel.Channel{}, errors.New("channel not found")
	}
	return cfg, nil
}

type fakeEnqueuer struct {
	events []channel.InboundEvent
	err    error
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, event channel.InboundEvent) error {
	e.events = append(e.events, event)
	return e.err
}

type staticAdapter struct {
	channelType channel.Type
	events      []channel.InboundEvent
	err         error
}

func (a *staticAdapter) Type() channel.Type { return a.channelType }

func (a *staticAdapter) Parse(cfg channel.Channel, body []byte) ([]channel.InboundEvent, error) {
	return a.events, a.err
}

func webhookFixture(t *testing.T, adapter channel.Adapter) (*WebhookHandler, *fakeEnqueuer) {
	t.Helper()
	registry := channel.NewRegistry()
	if adapter != nil {
		registry.MustRegister(adapter)
	}
	store := &fakeChannelStore{channels: map[string]channel.Channel{
		"channel-1": {
			ID:        "channel-1",
			CompanyID: "company-1",
			Type:      channel.TypeWhatsApp,
			Active:    true,
			Credentials: map[string]any{
				"verify_token": "tok-verify",
			},
		},
		"channel-off": {
			ID:     "channel-off",
			Type:   channel.TypeWhatsApp,
			Active: false,
		},
	}}
	enqueuer := &fakeEnqueuer{}
	return NewWebhookHandler(store, registry, enqueuer, slog.Default()), enqueuer
}

func webhookContext(method, target string, body string, channelID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("channel_id")
	c.SetParamValues(channelID)
	return c, rec
}

func TestVerifyEchoesChallenge(t *testing.T) {
	handler, _ := webhookFixture(t, nil)
	c, rec := webhookContext(http.MethodGet,
		"/webhooks/channel-1?hub.mode=subscribe&hub.verify_token=tok-verify&hub.challenge=12345",
		"", "channel-1")

	require.NoError(t, handler.Verify(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	handler, _ := webhookFixture(t, nil)
	c, _ := webhookContext(http.MethodGet,
		"/webhooks/channel-1?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345",
		"", "channel-1")

	err := handler.Verify(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestVerifyUnknownChannel(t *testing.T) {
	handler, _ := webhookFixture(t, nil)
	c, _ := webhookContext(http.MethodGet, "/webhooks/nope?hub.mode=subscribe", "", "nope")

	err := handler.Verify(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestReceiveEnqueuesParsedEvents(t *testing.T) {
	adapter := &staticAdapter{
		channelType: channel.TypeWhatsApp,
		events: []channel.InboundEvent{
			{ChannelID: "channel-1", ExternalSenderRef: "34600111222", Text: "hola"},
			{ChannelID: "channel-1", ExternalSenderRef: "34600111222", Text: "sigo aqui"},
		},
	}
	handler, enqueuer := webhookFixture(t, adapter)
	c, rec := webhookContext(http.MethodPost, "/webhooks/channel-1", `{}`, "channel-1")

	require.NoError(t, handler.Receive(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, enqueuer.events, 2)
	assert.Equal(t, "hola", enqueuer.events[0].Text)
}

func TestReceiveAcksUnparseablePayload(t *testing.T) {
	adapter := &staticAdapter{channelType: channel.TypeWhatsApp, err: errors.New("bad payload")}
	handler, enqueuer := webhookFixture(t, adapter)
	c, rec := webhookContext(http.MethodPost, "/webhooks/channel-1", "garbage", "channel-1")

	require.NoError(t, handler.Receive(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, enqueuer.events)
}

func TestReceiveAcksWhenQueueFull(t *testing.T) {
	adapter := &staticAdapter{
		channelType: channel.TypeWhatsApp,
		events:      []channel.InboundEvent{{ChannelID: "channel-1", Text: "hola"}},
	}
	handler, enqueuer := webhookFixture(t, adapter)
	enqueuer.err = errors.New("inbound queue full")
	c, rec := webhookContext(http.MethodPost, "/webhooks/channel-1", `{}`, "channel-1")

	require.NoError(t, handler.Receive(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReceiveInactiveChannel(t *testing.T) {
	handler, _ := webhookFixture(t, nil)
	c, _ := webhookContext(http.MethodPost, "/webhooks/channel-off", `{}`, "channel-off")

	err := handler.Receive(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}
