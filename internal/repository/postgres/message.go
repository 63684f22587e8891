package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/huddle/internal/models"
)

type MessageStore struct {
	db DBTX
}

func NewMessageStore(db DBTX) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `id, scope_id, sender_id, recipient_id, body, read, has_attachments, created_at`

func scanMessage(row pgx.Row, m *models.Message) error {
	return row.Scan(
		&m.ID,
		&m.ScopeID,
		&m.SenderID,
		&m.RecipientID,
		&m.Body,
		&m.Read,
		&m.HasAttachments,
		&m.CreatedAt,
	)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	return collect(rows, "message", func(r pgx.Rows, m *models.Message) error {
		return scanMessage(r, m)
	})
}

func (s *MessageStore) Create(ctx context.Context, scopeID uuid.UUID, senderID uuid.UUID, recipientID *uuid.UUID, body string) (*models.Message, error) {
	// id is a bigserial; RETURNING hands back the id and server timestamp.
	query := `
		INSERT INTO messages (scope_id, sender_id, recipient_id, body, read, has_attachments, created_at)
		VALUES ($1, $2, $3, $4, false, false, now())
		RETURNING ` + messageColumns

	var msg models.Message
	if err := scanMessage(s.db.QueryRow(ctx, query, scopeID, senderID, recipientID, body), &msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	var msg models.Message
	if err := scanMessage(s.db.QueryRow(ctx, query, messageID), &msg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListByScope(ctx context.Context, scopeID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	var query string
	var args []any

	if before > 0 {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE scope_id = $1 AND id < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3`
		args = []any{scopeID, before, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE scope_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`
		args = []any{scopeID, limit}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *MessageStore) ListDirectForUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient_id IS NOT NULL AND (sender_id = $1 OR recipient_id = $1)
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *MessageStore) SetHasAttachments(ctx context.Context, messageID int64) error {
	query := `UPDATE messages SET has_attachments = true WHERE id = $1 AND has_attachments = false`

	if _, err := s.db.Exec(ctx, query, messageID); err != nil {
		return fmt.Errorf("flag message attachments: %w", err)
	}
	return nil
}

func (s *MessageStore) MarkRead(ctx context.Context, recipientID uuid.UUID, senderID uuid.UUID) ([]models.Message, error) {
	query := `
		UPDATE messages SET read = true
		WHERE recipient_id = $1 AND sender_id = $2 AND read = false
		RETURNING ` + messageColumns

	rows, err := s.db.Query(ctx, query, recipientID, senderID)
	if err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}
	return scanMessages(rows)
}

func (s *MessageStore) Delete(ctx context.Context, messageID int64, senderID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND sender_id = $2`, messageID, senderID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
