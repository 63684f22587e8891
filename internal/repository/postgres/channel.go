package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/huddle/internal/models"
)

type ChannelStore struct {
	db DBTX
}

func NewChannelStore(db DBTX) *ChannelStore {
	return &ChannelStore{db: db}
}

const channelColumns = `id, tenant_id, name, is_private, created_at`

func scanChannel(row pgx.Row, ch *models.Channel) error {
	return row.Scan(&ch.ID, &ch.TenantID, &ch.Name, &ch.IsPrivate, &ch.CreatedAt)
}

func (s *ChannelStore) Create(ctx context.Context, tenantID uuid.UUID, name string, isPrivate bool) (*models.Channel, error) {
	query := `
		INSERT INTO channels (id, tenant_id, name, is_private, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now())
		RETURNING ` + channelColumns

	var ch models.Channel
	if err := scanChannel(s.db.QueryRow(ctx, query, tenantID, name, isPrivate), &ch); err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return &ch, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, tenantID uuid.UUID, channelID uuid.UUID) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1 AND tenant_id = $2`

	var ch models.Channel
	if err := scanChannel(s.db.QueryRow(ctx, query, channelID, tenantID), &ch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

func (s *ChannelStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE tenant_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return collect(rows, "channel", func(r pgx.Rows, ch *models.Channel) error {
		return scanChannel(r, ch)
	})
}
