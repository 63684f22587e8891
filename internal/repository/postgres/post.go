package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/huddle/internal/models"
)

type PostStore struct {
	db DBTX
}

func NewPostStore(db DBTX) *PostStore {
	return &PostStore{db: db}
}

const postColumns = `id, channel_id, author_id, body, has_attachments, created_at`

func scanPost(row pgx.Row, p *models.Post) error {
	return row.Scan(&p.ID, &p.ChannelID, &p.AuthorID, &p.Body, &p.HasAttachments, &p.CreatedAt)
}

func (s *PostStore) Create(ctx context.Context, channelID uuid.UUID, authorID uuid.UUID, body string) (*models.Post, error) {
	query := `
		INSERT INTO posts (channel_id, author_id, body, has_attachments, created_at)
		VALUES ($1, $2, $3, false, now())
		RETURNING ` + postColumns

	var p models.Post
	if err := scanPost(s.db.QueryRow(ctx, query, channelID, authorID, body), &p); err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return &p, nil
}

func (s *PostStore) GetByID(ctx context.Context, postID int64) (*models.Post, error) {
	var p models.Post
	if err := scanPost(s.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, postID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

func (s *PostStore) ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE channel_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return collect(rows, "post", func(r pgx.Rows, p *models.Post) error {
		return scanPost(r, p)
	})
}

func (s *PostStore) SetHasAttachments(ctx context.Context, postID int64) error {
	query := `UPDATE posts SET has_attachments = true WHERE id = $1 AND has_attachments = false`

	if _, err := s.db.Exec(ctx, query, postID); err != nil {
		return fmt.Errorf("flag post attachments: %w", err)
	}
	return nil
}

func (s *PostStore) Delete(ctx context.Context, postID int64, authorID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND author_id = $2`, postID, authorID)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
