// Package contacts stores external-party identities, one per channel-scoped external ref.
package contacts

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

// ErrNotFound is returned when no contact matches a lookup.
var ErrNotFound = errors.New("contact not found")

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
		logger: log.With(slog.String("service", "contacts")),
	}
}

// Find looks up a contact by company, channel type, and external ref.
func (s *DBService) Find(ctx context.Context, companyID, channelType, externalRef string) (Contact, error) {
	if s.pool == nil {
		return Contact{}, fmt.Errorf("contacts pool not configured")
	}
	pgCompanyID, err := dbpkg.ParseUUID(companyID)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, company_id, channel_type, external_ref, display_name, origin_channel, created_at, updated_at
		FROM contacts
		WHERE company_id = $1 AND channel_type = $2 AND external_ref = $3
		ORDER BY created_at
		LIMIT 1`,
		pgCompanyID, strings.TrimSpace(channelType), strings.TrimSpace(externalRef))
	contact, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return contact, err
}

// Create inserts a contact, stamping its origin channel.
func (s *DBService) Create(ctx context.Context, req CreateRequest) (Contact, error) {
	if s.pool == nil {
		return Contact{}, fmt.Errorf("contacts pool not configured")
	}
	pgCompanyID, err := dbpkg.ParseUUID(req.CompanyID)
	if err != nil {
		return Contact{}, err
	}
	var pgOrigin pgtype.UUID
	if strings.TrimSpace(req.OriginChannel) != "" {
		pgOrigin, err = dbpkg.ParseUUID(req.OriginChannel)
		if err != nil {
			return Contact{}, err
		}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (company_id, channel_type, external_ref, display_name, origin_channel)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, company_id, channel_type, external_ref, display_name, origin_channel, created_at, updated_at`,
		pgCompanyID,
		strings.TrimSpace(req.ChannelType),
		strings.TrimSpace(req.ExternalRef),
		dbpkg.ToPgText(req.DisplayName),
		pgOrigin)
	return scanContact(row)
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanContact(row pgRow) (Contact, error) {
	var (
		id, companyID, origin    pgtype.UUID
		channelType, externalRef string
		displayName              pgtype.Text
		createdAt, updatedAt     pgtype.Timestamptz
	)
	if err := row.Scan(&id, &companyID, &channelType, &externalRef, &displayName, &origin, &createdAt, &updatedAt); err != nil {
		return Contact{}, err
	}
	return Contact{
		ID:            dbpkg.UUIDToString(id),
		CompanyID:     dbpkg.UUIDToString(companyID),
		ChannelType:   channelType,
		ExternalRef:   externalRef,
		DisplayName:   dbpkg.TextToString(displayName),
		OriginChannel: dbpkg.UUIDToString(origin),
		CreatedAt:     dbpkg.TimeFromPg(createdAt),
		UpdatedAt:     dbpkg.TimeFromPg(updatedAt),
	}, nil
}
