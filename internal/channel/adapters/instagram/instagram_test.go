package instagram

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
		Type:      channel.TypeInstagram,
	}
}

func TestParseExtractsTextMessages(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"messaging": [{
				"sender": {"id": "ig-user-9"},
				"message": {"mid": "mid.1", "text": "me interesa el producto"}
			}]
		}]
	}`)

	events, err := NewAdapter(nil).Parse(testChannel(), body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, channel.TypeInstagram, event.Channel)
	assert.Equal(t, "ig-user-9", event.ExternalSenderRef)
	assert.Equal(t, "me interesa el producto", event.Text)
	assert.Equal(t, "mid.1", event.ProviderMessageID)
}

func TestParseSkipsEchoesAndEmptyText(t *testing.T) {
	body := []byte(`{
		"entry": [{
			"messaging": [
				{"sender": {"id": "page-1"}, "message": {"mid": "mid.1", "text": "gracias", "is_echo": true}},
				{"sender": {"id": "ig-user-9"}, "message": {"mid": "mid.2", "text": "  "}},
				{"sender": {"id": "ig-user-9"}, "message": {"mid": "mid.3", "text": "hola"}}
			]
		}]
	}`)

	events, err := NewAdapter(nil).Parse(testChannel(), body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mid.3", events[0].ProviderMessageID)
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	_, err := NewAdapter(nil).Parse(testChannel(), []byte("nope"))
	require.Error(t, err)
}
