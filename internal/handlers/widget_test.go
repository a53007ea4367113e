package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konvohq/konvo/internal/auth"
	"github.com/konvohq/konvo/internal/channel"
)

const widgetSecret = "widget-secret"

type fakeRunner struct {
	events  []channel.InboundEvent
	replies []string
	err     error
}

func (r *fakeRunner) Process(ctx context.Context, event channel.InboundEvent) ([]string, error) {
	r.events = append(r.events, event)
	return r.replies, r.err
}

func widgetFixture(t *testing.T) (*WidgetHandler, *fakeRunner) {
	t.Helper()
	store := &fakeChannelStore{channels: map[string]channel.Channel{
		"webchat-1": {
			ID:        "webchat-1",
			CompanyID: "company-1",
			Type:      channel.TypeWebchat,
			Active:    true,
		},
		"whatsapp-1": {
			ID:        "whatsapp-1",
			CompanyID: "company-1",
			Type:      channel.TypeWhatsApp,
			Active:    true,
		},
	}}
	runner := &fakeRunner{}
	handler := NewWidgetHandler(store, runner, widgetSecret, time.Hour, 5*time.Second, slog.Default())
	return handler, runner
}

func widgetContext(target, body, channelID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("channel_id")
	c.SetParamValues(channelID)
	return c, rec
}

func TestStartSessionIssuesVisitorToken(t *testing.T) {
	handler, _ := widgetFixture(t)
	c, rec := widgetContext("/widget/webchat-1/session",
		`{"email": "maria@example.com", "origin": "shop.example.com"}`, "webchat-1")

	require.NoError(t, handler.StartSession(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.VisitorRef)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	visitor, err := auth.ParseVisitorToken(resp.Token, widgetSecret)
	require.NoError(t, err)
	assert.Equal(t, "webchat-1", visitor.ChannelID)
	assert.Equal(t, "email:maria@example.com", visitor.VisitorRef)
}

func TestStartSessionRejectsNonWebchatChannel(t *testing.T) {
	handler, _ := widgetFixture(t)
	c, _ := widgetContext("/widget/whatsapp-1/session", `{}`, "whatsapp-1")

	err := handler.StartSession(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestSendMessageReturnsRepliesInline(t *testing.T) {
	handler, runner := widgetFixture(t)
	runner.replies = []string{"Hi! How can we help?"}

	token, _, err := auth.GenerateVisitorToken(auth.VisitorToken{
		CompanyID:  "company-1",
		ChannelID:  "webchat-1",
		VisitorRef: "visitor:shop.example.com:v-1",
	}, widgetSecret, time.Hour)
	require.NoError(t, err)

	c, rec := widgetContext("/widget/webchat-1/messages",
		`{"token": "`+token+`", "text": "hola", "name": "Maria"}`, "webchat-1")

	require.NoError(t, handler.SendMessage(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Hi! How can we help?"}, resp.Replies)

	require.Len(t, runner.events, 1)
	event := runner.events[0]
	assert.Equal(t, "visitor:shop.example.com:v-1", event.ExternalSenderRef)
	assert.Equal(t, channel.TypeWebchat, event.Channel)
	assert.Equal(t, "Maria", event.Hints.DisplayName)
}

func TestSendMessageAcceptsBearerHeader(t *testing.T) {
	handler, runner := widgetFixture(t)

	token, _, err := auth.GenerateVisitorToken(auth.VisitorToken{
		CompanyID:  "company-1",
		ChannelID:  "webchat-1",
		VisitorRef: "visitor:v-1",
	}, widgetSecret, time.Hour)
	require.NoError(t, err)

	c, rec := widgetContext("/widget/webchat-1/messages", `{"text": "hola"}`, "webchat-1")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+token)

	require.NoError(t, handler.SendMessage(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.events, 1)
	assert.Equal(t, "visitor:v-1", runner.events[0].ExternalSenderRef)
}

func TestSendMessageRejectsTokenForOtherChannel(t *testing.T) {
	handler, runner := widgetFixture(t)

	token, _, err := auth.GenerateVisitorToken(auth.VisitorToken{
		CompanyID:  "company-1",
		ChannelID:  "other-channel",
		VisitorRef: "visitor:v-1",
	}, widgetSecret, time.Hour)
	require.NoError(t, err)

	c, _ := widgetContext("/widget/webchat-1/messages",
		`{"token": "`+token+`", "text": "hola"}`, "webchat-1")

	err = handler.SendMessage(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Empty(t, runner.events)
}

func TestSendMessageRequiresText(t *testing.T) {
	handler, _ := widgetFixture(t)
	c, _ := widgetContext("/widget/webchat-1/messages", `{"token": "x", "text": "  "}`, "webchat-1")

	err := handler.SendMessage(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestSendMessageEmptyRepliesIsNotNull(t *testing.T) {
	handler, _ := widgetFixture(t)

	token, _, err := auth.GenerateVisitorToken(auth.VisitorToken{
		CompanyID:  "company-1",
		ChannelID:  "webchat-1",
		VisitorRef: "visitor:v-1",
	}, widgetSecret, time.Hour)
	require.NoError(t, err)

	c, rec := widgetContext("/widget/webchat-1/messages",
		`{"token": "`+token+`", "text": "hola"}`, "webchat-1")

	require.NoError(t, handler.SendMessage(c))
	assert.Contains(t, rec.Body.String(), `"replies":[]`)
}
