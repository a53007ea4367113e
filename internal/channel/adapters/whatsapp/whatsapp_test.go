package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konvohq/konvo/internal/channel"
)

func testChannel() channel.Channel {
	return channel.Channel{
		ID:        "channel-1",
		CompanyID: "company-1",
		Type:      channel.TypeWhatsApp,
	}
}

func TestParseExtractsTextMessages(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"contacts": [{"wa_id": "34600111222", "profile": {"name": "Maria"}}],
					"messages": [{
						"from": "34600111222",
						"id": "wamid.1",
						"type": "text",
						"text": {"body": "hola"}
					}]
				}
			}]
		}]
	}`)

	events, err := NewAdapter(nil).Parse(testChannel(), body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "company-1", event.CompanyID)
	assert.Equal(t, "channel-1", event.ChannelID)
	assert.Equal(t, channel.TypeWhatsApp, event.Channel)
	assert.Equal(t, "34600111222", event.ExternalSenderRef)
	assert.Equal(t, "hola", event.Text)
	assert.Equal(t, "wamid.1", event.ProviderMessageID)
	assert.Equal(t, "Maria", event.Hints.DisplayName)
	assert.False(t, event.ReceivedAt.IsZero())
}

func TestParseSkipsNonTextMessages(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [
						{"from": "34600111222", "id": "wamid.1", "type": "image"},
						{"from": "34600111222", "id": "wamid.2", "type": "text", "text": {"body": "  "}},
						{"from": "34600111222", "id": "wamid.3", "type": "text", "text": {"body": "sigo aqui"}}
					]
				}
			}]
		}]
	}`)

	events, err := NewAdapter(nil).Parse(testChannel(), body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "wamid.3", events[0].ProviderMessageID)
}

func TestParseStatusCallbackYieldsNoEvents(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"statuses": [{"id": "wamid.1", "status": "delivered"}]
				}
			}]
		}]
	}`)

	events, err := NewAdapter(nil).Parse(testChannel(), body)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	_, err := NewAdapter(nil).Parse(testChannel(), []byte("{not json"))
	require.Error(t, err)
}
