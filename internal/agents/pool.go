// Package agents provides the human agent pool used for handoff assignment.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/konvohq/konvo/internal/db"
)

// Agent is a human agent eligible for conversation assignment.
type Agent struct {
	ID          string
	CompanyID   string
	DisplayName string
	Role        string
	Active      bool
}

// Pool picks a human agent for assignment. The requirement is uniform load
// distribution among active agents, not any particular randomness source.
type Pool interface {
	PickOne(ctx context.Context, companyID string) (Agent, bool, error)
}

// DBPool implements Pool by sampling the active agents of a company.
type DBPool struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPool(log *slog.Logger, pool *pgxpool.Pool) *DBPool {
	if log == nil {
		log = slog.Default()
	}
	return &DBPool{
		pool:   pool,
		logger: log.With(slog.String("service", "agents")),
	}
}

// PickOne returns a uniformly random active agent, or ok=false when none exist.
func (p *DBPool) PickOne(ctx context.Context, companyID string) (Agent, bool, error) {
	if p.pool == nil {
		return Agent{}, false, fmt.Errorf("agents pool not configured")
	}
	pgCompanyID, err := dbpkg.ParseUUID(companyID)
	if err != nil {
		return Agent{}, false, err
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, company_id, display_name, role, active
		FROM agents
		WHERE company_id = $1 AND active`, pgCompanyID)
	if err != nil {
		return Agent{}, false, err
	}
	defer rows.Close()

	var candidates []Agent
	for rows.Next() {
		var (
			id, cid pgtype.UUID
			agent   Agent
		)
		if err := rows.Scan(&id, &cid, &agent.DisplayName, &agent.Role, &agent.Active); err != nil {
			return Agent{}, false, err
		}
		agent.ID = dbpkg.UUIDToString(id)
		agent.CompanyID = dbpkg.UUIDToString(cid)
		candidates = append(candidates, agent)
	}
	if err := rows.Err(); err != nil {
		return Agent{}, false, err
	}
	if len(candidates) == 0 {
		return Agent{}, false, nil
	}
	return candidates[rand.Intn(len(candidates))], true, nil
}
