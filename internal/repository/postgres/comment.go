package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/huddle/internal/models"
)

type CommentStore struct {
	db DBTX
}

func NewCommentStore(db DBTX) *CommentStore {
	return &CommentStore{db: db}
}

const commentColumns = `id, post_id, author_id, body, created_at`

func (s *CommentStore) Create(ctx context.Context, postID int64, authorID uuid.UUID, body string) (*models.Comment, error) {
	query := `
		INSERT INTO comments (post_id, author_id, body, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING ` + commentColumns

	var c models.Comment
	err := s.db.QueryRow(ctx, query, postID, authorID, body).Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &c, nil
}

func (s *CommentStore) ListByPosts(ctx context.Context, postIDs []int64) ([]models.Comment, error) {
	if len(postIDs) == 0 {
		return []models.Comment{}, nil
	}

	query := `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE post_id = ANY($1)
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, postIDs)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return collect(rows, "comment", func(r pgx.Rows, c *models.Comment) error {
		return r.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt)
	})
}
