package channel

import "context"

// Adapter parses a provider webhook body into normalized inbound events.
// A single delivery may carry zero or more messages.
type Adapter interface {
	Type() Type
	Parse(cfg Channel, body []byte) ([]InboundEvent, error)
}

// Sender delivers an outbound reply to a provider. Delivery failure is logged by
// callers; it never aborts a pipeline run.
type Sender interface {
	Send(ctx context.Context, cfg Channel, recipientRef, text string) error
}
