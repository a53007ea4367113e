// Package conversations stores conversation rows and applies ownership transitions.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/konvohq/konvo/internal/db"
)

// ErrNotFound is returned when no conversation matches a lookup.
var ErrNotFound = errors.New("conversation not found")

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
		logger: log.With(slog.String("service", "conversations")),
	}
}

const conversationColumns = `id, company_id, channel_id, contact_id, status, handled_by_ai_agent_id, assigned_agent_ids, human_takeover, last_message_at, last_inbound_at, created_at, updated_at`

// FindOpenByContact returns the oldest open conversation for a contact, so
// concurrent duplicates converge on one winner.
func (s *DBService) FindOpenByContact(ctx context.Context, companyID, contactID string) (Conversation, error) {
	if s.pool == nil {
		return Conversation{}, fmt.Errorf("conversations pool not configured")
	}
	pgCompanyID, err := dbpkg.ParseUUID(companyID)
	if err != nil {
		return Conversation{}, err
	}
	pgContactID, err := dbpkg.ParseUUID(contactID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE company_id = $1 AND contact_id = $2 AND status = 'open'
		ORDER BY created_at
		LIMIT 1`, pgCompanyID, pgContactID)
	conversation, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return conversation, err
}

// Create inserts an open conversation with its initial ownership.
func (s *DBService) Create(ctx context.Context, req CreateRequest) (Conversation, error) {
	if s.pool == nil {
		return Conversation{}, fmt.Errorf("conversations pool not configured")
	}
	pgCompanyID, err := dbpkg.ParseUUID(req.CompanyID)
	if err != nil {
		return Conversation{}, err
	}
	pgChannelID, err := dbpkg.ParseUUID(req.ChannelID)
	if err != nil {
		return Conversation{}, err
	}
	pgContactID, err := dbpkg.ParseUUID(req.ContactID)
	if err != nil {
		return Conversation{}, err
	}
	var pgAIAgentID pgtype.UUID
	if strings.TrimSpace(req.HandledByAIAgentID) != "" {
		pgAIAgentID, err = dbpkg.ParseUUID(req.HandledByAIAgentID)
		if err != nil {
			return Conversation{}, err
		}
	}
	agentIDs, err := toUUIDSlice(req.AssignedAgentIDs)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (company_id, channel_id, contact_id, status, handled_by_ai_agent_id, assigned_agent_ids)
		VALUES ($1, $2, $3, 'open', $4, $5)
		RETURNING `+conversationColumns,
		pgCompanyID, pgChannelID, pgContactID, pgAIAgentID, agentIDs)
	return scanConversation(row)
}

// AssignAgents replaces the human assignment, clears AI ownership, and marks
// the takeover that stops automation. The default assignee set at creation
// goes through Create, not here.
func (s *DBService) AssignAgents(ctx context.Context, conversationID string, agentIDs []string) error {
	if s.pool == nil {
		return fmt.Errorf("conversations pool not configured")
	}
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	ids, err := toUUIDSlice(agentIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET assigned_agent_ids = $2, handled_by_ai_agent_id = NULL, human_takeover = TRUE, updated_at = now()
		WHERE id = $1`, pgID, ids)
	return err
}

// SetAIOwner marks the conversation as owned by an AI agent.
func (s *DBService) SetAIOwner(ctx context.Context, conversationID, aiAgentID string) error {
	if s.pool == nil {
		return fmt.Errorf("conversations pool not configured")
	}
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	pgAgentID, err := dbpkg.ParseUUID(aiAgentID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET handled_by_ai_agent_id = $2, updated_at = now()
		WHERE id = $1`, pgID, pgAgentID)
	return err
}

// TouchInbound bumps last_message_at and last_inbound_at.
func (s *DBService) TouchInbound(ctx context.Context, conversationID string) error {
	if s.pool == nil {
		return fmt.Errorf("conversations pool not configured")
	}
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = now(), last_inbound_at = now(), updated_at = now()
		WHERE id = $1`, pgID)
	return err
}

// TouchOutbound bumps last_message_at only.
func (s *DBService) TouchOutbound(ctx context.Context, conversationID string) error {
	if s.pool == nil {
		return fmt.Errorf("conversations pool not configured")
	}
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = now(), updated_at = now()
		WHERE id = $1`, pgID)
	return err
}

func toUUIDSlice(ids []string) ([]pgtype.UUID, error) {
	out := make([]pgtype.UUID, 0, len(ids))
	for _, id := range ids {
		pgID, err := dbpkg.ParseUUID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, pgID)
	}
	return out, nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanConversation(row pgRow) (Conversation, error) {
	var (
		id, companyID, channelID, contactID pgtype.UUID
		status                              string
		aiAgentID                           pgtype.UUID
		assigned                            []pgtype.UUID
		humanTakeover                       bool
		lastMessageAt, lastInboundAt        pgtype.Timestamptz
		createdAt, updatedAt                pgtype.Timestamptz
	)
	if err := row.Scan(&id, &companyID, &channelID, &contactID, &status, &aiAgentID, &assigned, &humanTakeover, &lastMessageAt, &lastInboundAt, &createdAt, &updatedAt); err != nil {
		return Conversation{}, err
	}
	agentIDs := make([]string, 0, len(assigned))
	for _, agentID := range assigned {
		if value := dbpkg.UUIDToString(agentID); value != "" {
			agentIDs = append(agentIDs, value)
		}
	}
	return Conversation{
		ID:                 dbpkg.UUIDToString(id),
		CompanyID:          dbpkg.UUIDToString(companyID),
		ChannelID:          dbpkg.UUIDToString(channelID),
		ContactID:          dbpkg.UUIDToString(contactID),
		Status:             status,
		HandledByAIAgentID: dbpkg.UUIDToString(aiAgentID),
		AssignedAgentIDs:   agentIDs,
		HumanTakeover:      humanTakeover,
		LastMessageAt:      dbpkg.TimeFromPg(lastMessageAt),
		LastInboundAt:      dbpkg.TimeFromPg(lastInboundAt),
		CreatedAt:          dbpkg.TimeFromPg(createdAt),
		UpdatedAt:          dbpkg.TimeFromPg(updatedAt),
	}, nil
}
