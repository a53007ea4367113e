package contacts

import "time"

// Contact is the identity of one external party on a channel type.
type Contact struct {
	ID            string
	CompanyID     string
	ChannelType   string
	ExternalRef   string
	DisplayName   string
	OriginChannel string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateRequest captures the fields stamped on first inbound message from a new sender.
type CreateRequest struct {
	CompanyID     string
	ChannelType   string
	ExternalRef   string
	DisplayName   string
	OriginChannel string
}
