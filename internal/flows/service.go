package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konvohq/konvo/internal/db"
)

// DBService stores chatbots and their per-conversation sessions in Postgres.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDBService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "flows")),
	}
}

// GetChatbot loads a chatbot and decodes its stored graph.
func (s *DBService) GetChatbot(ctx context.Context, id string) (Chatbot, error) {
	if s.pool == nil {
		return Chatbot{}, fmt.Errorf("db not configured")
	}
	botID, err := db.ParseUUID(id)
	if err != nil {
		return Chatbot{}, fmt.Errorf("invalid chatbot id: %w", err)
	}

	var (
		uuid                 pgtype.UUID
		companyID            pgtype.UUID
		name                 string
		raw                  []byte
		createdAt, updatedAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id, company_id, name, graph, created_at, updated_at
		 FROM chatbots WHERE id = $1`,
		botID,
	).Scan(&uuid, &companyID, &name, &raw, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chatbot{}, ErrNotFound
	}
	if err != nil {
		return Chatbot{}, fmt.Errorf("get chatbot: %w", err)
	}

	graph, err := DecodeGraph(raw)
	if err != nil {
		return Chatbot{}, fmt.Errorf("chatbot %s: %w", id, err)
	}
	return Chatbot{
		ID:        db.UUIDToString(uuid),
		CompanyID: db.UUIDToString(companyID),
		Name:      name,
		Graph:     graph,
		CreatedAt: db.TimeFromPg(createdAt),
		UpdatedAt: db.TimeFromPg(updatedAt),
	}, nil
}

// FindLiveSession returns the live (not completed) session for a conversation.
func (s *DBService) FindLiveSession(ctx context.Context, conversationID string) (Session, error) {
	if s.pool == nil {
		return Session{}, fmt.Errorf("db not configured")
	}
	convID, err := db.ParseUUID(conversationID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid conversation id: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, chatbot_id, conversation_id, current_node_id, completed, created_at, updated_at
		 FROM chatbot_sessions
		 WHERE conversation_id = $1 AND NOT completed
		 ORDER BY created_at LIMIT 1`,
		convID,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("find live session: %w", err)
	}
	return session, nil
}

// CreateSession opens a new session positioned at nodeID. Any live session the
// conversation still has is completed first, so at most one stays live.
func (s *DBService) CreateSession(ctx context.Context, chatbotID, conversationID, nodeID string) (Session, error) {
	if s.pool == nil {
		return Session{}, fmt.Errorf("db not configured")
	}
	botID, err := db.ParseUUID(chatbotID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid chatbot id: %w", err)
	}
	convID, err := db.ParseUUID(conversationID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid conversation id: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE chatbot_sessions SET completed = true, updated_at = now()
		 WHERE conversation_id = $1 AND NOT completed`,
		convID,
	)
	if err != nil {
		return Session{}, fmt.Errorf("complete stale sessions: %w", err)
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO chatbot_sessions (chatbot_id, conversation_id, current_node_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, chatbot_id, conversation_id, current_node_id, completed, created_at, updated_at`,
		botID, convID, nodeID,
	)
	session, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("session created",
		slog.String("session_id", session.ID),
		slog.String("conversation_id", conversationID),
		slog.String("node_id", nodeID))
	return session, nil
}

// AdvanceSession moves the session cursor to nodeID.
func (s *DBService) AdvanceSession(ctx context.Context, sessionID, nodeID string) error {
	if s.pool == nil {
		return fmt.Errorf("db not configured")
	}
	id, err := db.ParseUUID(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE chatbot_sessions SET current_node_id = $2, updated_at = now() WHERE id = $1`,
		id, nodeID,
	)
	if err != nil {
		return fmt.Errorf("advance session: %w", err)
	}
	return nil
}

// CompleteSession marks the session completed. Completed sessions are never
// reopened; the next inbound message starts a fresh one.
func (s *DBService) CompleteSession(ctx context.Context, sessionID string) error {
	if s.pool == nil {
		return fmt.Errorf("db not configured")
	}
	id, err := db.ParseUUID(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE chatbot_sessions SET completed = true, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		id, botID, convID    pgtype.UUID
		nodeID               string
		completed            bool
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &botID, &convID, &nodeID, &completed, &createdAt, &updatedAt); err != nil {
		return Session{}, err
	}
	return Session{
		ID:             db.UUIDToString(id),
		ChatbotID:      db.UUIDToString(botID),
		ConversationID: db.UUIDToString(convID),
		CurrentNodeID:  nodeID,
		Completed:      completed,
		CreatedAt:      db.TimeFromPg(createdAt),
		UpdatedAt:      db.TimeFromPg(updatedAt),
	}, nil
}
