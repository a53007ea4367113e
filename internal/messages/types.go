package messages

import "time"

// Direction of a message relative to the company.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one persisted conversation message row. The dashboard reads these;
// the pipeline writes them.
type Message struct {
	ID                string
	ConversationID    string
	Direction         Direction
	SenderLabel       string
	Content           string
	ProviderMessageID string
	CreatedAt         time.Time
}

// PersistInput captures one message write.
type PersistInput struct {
	ConversationID    string
	Direction         Direction
	SenderLabel       string
	Content           string
	ProviderMessageID string
}
