package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/huddle/internal/repository"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx the stores need, so the
// same store can run on the pool or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uuidStrings converts ids for `= ANY($1::uuid[])` parameters.
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// collect drains rows through scan into a non-nil slice.
func collect[T any](rows pgx.Rows, what string, scan func(pgx.Rows, *T) error) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

var (
	_ repository.TenantRepository     = (*TenantStore)(nil)
	_ repository.ChannelRepository    = (*ChannelStore)(nil)
	_ repository.MembershipRepository = (*MembershipStore)(nil)
	_ repository.UserRepository       = (*UserStore)(nil)
	_ repository.MessageRepository    = (*MessageStore)(nil)
	_ repository.AttachmentRepository = (*AttachmentStore)(nil)
	_ repository.ReactionRepository   = (*ReactionStore)(nil)
	_ repository.PostRepository       = (*PostStore)(nil)
	_ repository.CommentRepository    = (*CommentStore)(nil)
)
