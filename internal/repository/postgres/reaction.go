package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/huddle/internal/models"
)

type ReactionStore struct {
	db DBTX
}

func NewReactionStore(db DBTX) *ReactionStore {
	return &ReactionStore{db: db}
}

func (s *ReactionStore) Add(ctx context.Context, kind models.OwnerKind, targetID int64, userID uuid.UUID) (bool, error) {
	query := `
		INSERT INTO reactions (target_kind, target_id, user_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (target_kind, target_id, user_id) DO NOTHING`

	tag, err := s.db.Exec(ctx, query, kind, targetID, userID)
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ReactionStore) Remove(ctx context.Context, kind models.OwnerKind, targetID int64, userID uuid.UUID) (bool, error) {
	query := `DELETE FROM reactions WHERE target_kind = $1 AND target_id = $2 AND user_id = $3`

	tag, err := s.db.Exec(ctx, query, kind, targetID, userID)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ReactionStore) ListByTargets(ctx context.Context, kind models.OwnerKind, targetIDs []int64) ([]models.Reaction, error) {
	if len(targetIDs) == 0 {
		return []models.Reaction{}, nil
	}

	query := `
		SELECT target_kind, target_id, user_id, created_at
		FROM reactions
		WHERE target_kind = $1 AND target_id = ANY($2)`

	rows, err := s.db.Query(ctx, query, kind, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return collect(rows, "reaction", func(r pgx.Rows, rc *models.Reaction) error {
		return r.Scan(&rc.TargetKind, &rc.TargetID, &rc.UserID, &rc.CreatedAt)
	})
}
