// Package messages persists conversation messages and serves chronological history.
package messages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/konvohq/konvo/internal/db"
)

type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "messages")),
	}
}

// Persist inserts one message row.
func (s *DBService) Persist(ctx context.Context, input PersistInput) (Message, error) {
	if s.pool == nil {
		return Message{}, fmt.Errorf("messages pool not configured")
	}
	pgConversationID, err := dbpkg.ParseUUID(input.ConversationID)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, direction, sender_label, content, provider_message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, direction, sender_label, content, provider_message_id, created_at`,
		pgConversationID,
		string(input.Direction),
		strings.TrimSpace(input.SenderLabel),
		input.Content,
		dbpkg.ToPgText(input.ProviderMessageID))
	return scanMessage(row)
}

// History returns a conversation's messages in chronological order. A
// positive limit keeps only the newest rows, still oldest first.
func (s *DBService) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("messages pool not configured")
	}
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, conversation_id, direction, sender_label, content, provider_message_id, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at`
	args := []any{pgConversationID}
	if limit > 0 {
		query = `
		SELECT * FROM (
			SELECT id, conversation_id, direction, sender_label, content, provider_message_id, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) newest ORDER BY created_at`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanMessage(row pgRow) (Message, error) {
	var (
		id, conversationID pgtype.UUID
		direction          string
		msg                Message
		providerMessageID  pgtype.Text
		createdAt          pgtype.Timestamptz
	)
	if err := row.Scan(&id, &conversationID, &direction, &msg.SenderLabel, &msg.Content, &providerMessageID, &createdAt); err != nil {
		return Message{}, err
	}
	msg.ID = dbpkg.UUIDToString(id)
	msg.ConversationID = dbpkg.UUIDToString(conversationID)
	msg.Direction = Direction(direction)
	msg.ProviderMessageID = dbpkg.TextToString(providerMessageID)
	msg.CreatedAt = dbpkg.TimeFromPg(createdAt)
	return msg, nil
}
