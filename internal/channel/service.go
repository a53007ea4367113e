package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/konvohq/konvo/internal/db"
)

// DBService loads channel configuration rows.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a channel configuration service backed by Postgres.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "channel")),
	}
}

// GetByID returns one channel row.
func (s *DBService) GetByID(ctx context.Context, channelID string) (Channel, error) {
	if s.pool == nil {
		return Channel{}, fmt.Errorf("channel pool not configured")
	}
	pgID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return Channel{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, company_id, channel_type, display_name, automation_priority, chatbot_id, active, credentials, created_at, updated_at
		FROM channels WHERE id = $1`, pgID)
	return scanChannel(row)
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanChannel(row pgRow) (Channel, error) {
	var (
		id, companyID, chatbotID pgtype.UUID
		channelType, priority    string
		displayName              pgtype.Text
		active                   bool
		credentials              []byte
		createdAt, updatedAt     pgtype.Timestamptz
	)
	if err := row.Scan(&id, &companyID, &channelType, &displayName, &priority, &chatbotID, &active, &credentials, &createdAt, &updatedAt); err != nil {
		return Channel{}, err
	}
	parsedType, err := ParseType(channelType)
	if err != nil {
		return Channel{}, err
	}
	return Channel{
		ID:          dbpkg.UUIDToString(id),
		CompanyID:   dbpkg.UUIDToString(companyID),
		Type:        parsedType,
		DisplayName: dbpkg.TextToString(displayName),
		Priority:    ParsePriority(priority),
		ChatbotID:   dbpkg.UUIDToString(chatbotID),
		Active:      active,
		Credentials: parseJSONMap(credentials),
		CreatedAt:   dbpkg.TimeFromPg(createdAt),
		UpdatedAt:   dbpkg.TimeFromPg(updatedAt),
	}, nil
}

func parseJSONMap(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("parseJSONMap: unmarshal failed", slog.Any("error", err))
	}
	return m
}
