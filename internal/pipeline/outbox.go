package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/konvohq/konvo/internal/channel"
	"github.com/konvohq/konvo/internal/messages"
)

// MessageStore is the pipeline's view of message persistence.
type MessageStore interface {
	Persist(ctx context.Context, input messages.PersistInput) (messages.Message, error)
	History(ctx context.Context, conversationID string, limit int) ([]messages.Message, error)
}

// outbox records and delivers one run's outbound replies. Every reply is
// persisted and the conversation timestamp bumped before delivery is
// attempted; a provider send failure is logged, never returned, so the
// dashboard still shows what was attempted.
type outbox struct {
	messages      MessageStore
	conversations ConversationStore
	sender        channel.Sender
	cfg           channel.Channel
	recipientRef  string
	logger        *slog.Logger

	// replies collects sent texts for the synchronous web-chat path.
	replies []string
}

func (o *outbox) Reply(ctx context.Context, conversationID, senderLabel, text string) error {
	if text == "" {
		return nil
	}
	if _, err := o.messages.Persist(ctx, messages.PersistInput{
		ConversationID: conversationID,
		Direction:      messages.DirectionOutbound,
		SenderLabel:    senderLabel,
		Content:        text,
	}); err != nil {
		return fmt.Errorf("persist reply: %w", err)
	}
	if err := o.conversations.TouchOutbound(ctx, conversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	o.replies = append(o.replies, text)

	if o.sender != nil {
		if err := o.sender.Send(ctx, o.cfg, o.recipientRef, text); err != nil {
			o.logger.Error("reply delivery failed",
				slog.String("conversation_id", conversationID),
				slog.String("channel_id", o.cfg.ID),
				slog.Any("error", err))
		}
	}
	return nil
}
