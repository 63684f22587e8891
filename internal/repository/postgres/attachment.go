package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/huddle/internal/models"
)

type AttachmentStore struct {
	db DBTX
}

func NewAttachmentStore(db DBTX) *AttachmentStore {
	return &AttachmentStore{db: db}
}

const attachmentColumns = `id, owner_kind, owner_id, file_name, mime_type, size_bytes, url, created_at`

func scanAttachment(row pgx.Row, a *models.Attachment) error {
	return row.Scan(&a.ID, &a.OwnerKind, &a.OwnerID, &a.FileName, &a.MimeType, &a.SizeBytes, &a.URL, &a.CreatedAt)
}

func (s *AttachmentStore) Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error) {
	query := `
		INSERT INTO attachments (id, owner_kind, owner_id, file_name, mime_type, size_bytes, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING ` + attachmentColumns

	var out models.Attachment
	err := scanAttachment(s.db.QueryRow(ctx, query,
		a.ID, a.OwnerKind, a.OwnerID, a.FileName, a.MimeType, a.SizeBytes, a.URL,
	), &out)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return &out, nil
}

func (s *AttachmentStore) ListByOwners(ctx context.Context, kind models.OwnerKind, ownerIDs []int64) ([]models.Attachment, error) {
	if len(ownerIDs) == 0 {
		return []models.Attachment{}, nil
	}

	query := `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE owner_kind = $1 AND owner_id = ANY($2)
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, kind, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return collect(rows, "attachment", func(r pgx.Rows, a *models.Attachment) error {
		return scanAttachment(r, a)
	})
}
