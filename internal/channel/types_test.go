package channel

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	got, err := ParseType(" WhatsApp ")
	require.NoError(t, err)
	assert.Equal(t, TypeWhatsApp, got)

	_, err = ParseType("telegram")
	assert.Error(t, err)
}

func TestParsePriorityDefaultsToChatbotFirst(t *testing.T) {
	assert.Equal(t, PriorityAIFirst, ParsePriority("AI_FIRST"))
	assert.Equal(t, PriorityChatbotFirst, ParsePriority("chatbot_first"))
	assert.Equal(t, PriorityChatbotFirst, ParsePriority(""))
	assert.Equal(t, PriorityChatbotFirst, ParsePriority("garbage"))
}

func TestCredentialHandlesMissingAndNonString(t *testing.T) {
	cfg := Channel{Credentials: map[string]any{
		"access_token": "  tok-1  ",
		"retries":      3,
	}}
	assert.Equal(t, "tok-1", cfg.Credential("access_token"))
	assert.Equal(t, "", cfg.Credential("retries"))
	assert.Equal(t, "", cfg.Credential("missing"))
	assert.Equal(t, "", Channel{}.Credential("access_token"))
}

func TestClampedText(t *testing.T) {
	event := InboundEvent{Text: "  hola  "}
	assert.Equal(t, "hola", event.ClampedText())

	event.Text = strings.Repeat("a", MaxTextLength+100)
	assert.Len(t, event.ClampedText(), MaxTextLength)

	// A multibyte rune straddling the limit is dropped whole.
	event.Text = strings.Repeat("a", MaxTextLength-1) + "ééé"
	clamped := event.ClampedText()
	assert.True(t, utf8.ValidString(clamped))
	assert.Equal(t, strings.Repeat("a", MaxTextLength-1), clamped)

	event.Text = strings.Repeat("é", MaxTextLength)
	clamped = event.ClampedText()
	assert.True(t, utf8.ValidString(clamped))
	assert.LessOrEqual(t, len(clamped), MaxTextLength)
}
