// Package aiagents stores AI agent configuration and channel bindings.
package aiagents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/konvohq/konvo/internal/db"
)

// ErrNotFound is returned when no AI agent matches a lookup.
var ErrNotFound = errors.New("ai agent not found")

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
		logger: log.With(slog.String("service", "aiagents")),
	}
}

const agentColumns = `id, company_id, name, system_prompt, context_info, model, temperature, transfer_keywords, active, created_at, updated_at`

// GetByID returns one AI agent.
func (s *DBService) GetByID(ctx context.Context, agentID string) (Agent, error) {
	if s.pool == nil {
		return Agent{}, fmt.Errorf("aiagents pool not configured")
	}
	pgID, err := dbpkg.ParseUUID(agentID)
	if err != nil {
		return Agent{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM ai_agents WHERE id = $1`, pgID)
	agent, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return agent, err
}

// FindActiveForChannel returns the active AI agent bound to a channel, if any.
func (s *DBService) FindActiveForChannel(ctx context.Context, channelID string) (Agent, error) {
	if s.pool == nil {
		return Agent{}, fmt.Errorf("aiagents pool not configured")
	}
	pgChannelID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return Agent{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM ai_agents a
		JOIN ai_agent_channels ac ON ac.ai_agent_id = a.id
		WHERE ac.channel_id = $1 AND a.active
		ORDER BY a.created_at
		LIMIT 1`, pgChannelID)
	agent, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return agent, err
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanAgent(row pgRow) (Agent, error) {
	var (
		id, companyID        pgtype.UUID
		agent                Agent
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &companyID, &agent.Name, &agent.SystemPrompt, &agent.ContextInfo,
		&agent.Model, &agent.Temperature, &agent.TransferKeywords, &agent.Active, &createdAt, &updatedAt); err != nil {
		return Agent{}, err
	}
	agent.ID = dbpkg.UUIDToString(id)
	agent.CompanyID = dbpkg.UUIDToString(companyID)
	agent.CreatedAt = dbpkg.TimeFromPg(createdAt)
	agent.UpdatedAt = dbpkg.TimeFromPg(updatedAt)
	return agent, nil
}
