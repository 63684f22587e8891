// Package assembler hydrates stored rows into view models: sender
// profiles, attachments, like counts and comments, each fetched in one
// batched read for the whole set in view.
//
// The assembler never fails. A read that errors is logged and the views
// render with placeholders or empty collections instead.
package assembler

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ProfileSource interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

type AttachmentSource interface {
	ListByOwners(ctx context.Context, kind models.OwnerKind, ownerIDs []int64) ([]models.Attachment, error)
}

type ReactionSource interface {
	ListByTargets(ctx context.Context, kind models.OwnerKind, targetIDs []int64) ([]models.Reaction, error)
}

type CommentSource interface {
	ListByPosts(ctx context.Context, postIDs []int64) ([]models.Comment, error)
}

type Assembler struct {
	profiles    ProfileSource
	attachments AttachmentSource
	reactions   ReactionSource
	comments    CommentSource
	logger      *zap.Logger
	metrics     *observ.Metrics
}

func New(
	profiles ProfileSource,
	attachments AttachmentSource,
	reactions ReactionSource,
	comments CommentSource,
	logger *zap.Logger,
	metrics *observ.Metrics,
) *Assembler {
	return &Assembler{
		profiles:    profiles,
		attachments: attachments,
		reactions:   reactions,
		comments:    comments,
		logger:      logger.Named("assembler"),
		metrics:     metrics,
	}
}

// Messages hydrates rows for viewer. Output order matches input order.
func (a *Assembler) Messages(ctx context.Context, rows []models.Message, viewer uuid.UUID) []view.Message {
	if len(rows) == 0 {
		return []view.Message{}
	}

	ids := make([]int64, 0, len(rows))
	withFiles := make([]int64, 0)
	senders := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
		senders = append(senders, r.SenderID)
		if r.HasAttachments {
			withFiles = append(withFiles, r.ID)
		}
	}

	var (
		profiles map[uuid.UUID]view.Sender
		files    map[int64][]models.Attachment
		tally    Tally
		g        errgroup.Group
	)
	g.Go(func() error {
		profiles = a.loadProfiles(ctx, senders)
		return nil
	})
	g.Go(func() error {
		files = a.loadAttachments(ctx, models.OwnerMessage, withFiles)
		return nil
	})
	g.Go(func() error {
		tally = a.loadTally(ctx, models.OwnerMessage, ids, viewer)
		return nil
	})
	_ = g.Wait()

	out := make([]view.Message, 0, len(rows))
	for _, r := range rows {
		m := view.NewMessage(r, senderOrPlaceholder(profiles, r.SenderID))
		if fs, ok := files[r.ID]; ok {
			m.Attachments = fs
		}
		m.LikeCount = tally.Counts[r.ID]
		m.LikedByMe = tally.LikedByViewer[r.ID]
		out = append(out, m)
	}
	return out
}

// Message hydrates a single row, as delivered by the change feed.
func (a *Assembler) Message(ctx context.Context, row models.Message, viewer uuid.UUID) view.Message {
	return a.Messages(ctx, []models.Message{row}, viewer)[0]
}

// Posts hydrates posts with their comments, attachments and likes.
// Comment authors are resolved in the same profile batch as post authors.
func (a *Assembler) Posts(ctx context.Context, posts []models.Post, viewer uuid.UUID) []view.Post {
	if len(posts) == 0 {
		return []view.Post{}
	}

	ids := make([]int64, 0, len(posts))
	withFiles := make([]int64, 0)
	for _, p := range posts {
		ids = append(ids, p.ID)
		if p.HasAttachments {
			withFiles = append(withFiles, p.ID)
		}
	}

	var (
		comments map[int64][]models.Comment
		files    map[int64][]models.Attachment
		tally    Tally
		g        errgroup.Group
	)
	g.Go(func() error {
		comments = a.loadComments(ctx, ids)
		return nil
	})
	g.Go(func() error {
		files = a.loadAttachments(ctx, models.OwnerPost, withFiles)
		return nil
	})
	g.Go(func() error {
		tally = a.loadTally(ctx, models.OwnerPost, ids, viewer)
		return nil
	})
	_ = g.Wait()

	authors := make([]uuid.UUID, 0, len(posts))
	for _, p := range posts {
		authors = append(authors, p.AuthorID)
		for _, c := range comments[p.ID] {
			authors = append(authors, c.AuthorID)
		}
	}
	profiles := a.loadProfiles(ctx, authors)

	out := make([]view.Post, 0, len(posts))
	for _, p := range posts {
		v := view.NewPost(p, senderOrPlaceholder(profiles, p.AuthorID))
		if fs, ok := files[p.ID]; ok {
			v.Attachments = fs
		}
		for _, c := range comments[p.ID] {
			v.Comments = append(v.Comments, view.Comment{
				ID:        c.ID,
				PostID:    c.PostID,
				Author:    senderOrPlaceholder(profiles, c.AuthorID),
				Content:   c.Body,
				CreatedAt: c.CreatedAt,
			})
		}
		v.CommentCount = len(v.Comments)
		v.LikeCount = tally.Counts[p.ID]
		v.LikedByMe = tally.LikedByViewer[p.ID]
		out = append(out, v)
	}
	return out
}

// Senders resolves a batch of user ids to sender views, with placeholders
// for ids that have no profile.
func (a *Assembler) Senders(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]view.Sender {
	profiles := a.loadProfiles(ctx, ids)
	for _, id := range ids {
		if _, ok := profiles[id]; !ok {
			profiles[id] = view.Placeholder(id)
		}
	}
	return profiles
}

func (a *Assembler) loadProfiles(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]view.Sender {
	out := make(map[uuid.UUID]view.Sender)
	unique := distinct(ids)
	if len(unique) == 0 {
		return out
	}
	users, err := a.profiles.ListByIDs(ctx, unique)
	if err != nil {
		a.degraded("profiles", err, zap.Int("ids", len(unique)))
		return out
	}
	for _, u := range users {
		out[u.ID] = view.SenderFromUser(u)
	}
	return out
}

func (a *Assembler) loadAttachments(ctx context.Context, kind models.OwnerKind, ids []int64) map[int64][]models.Attachment {
	out := make(map[int64][]models.Attachment)
	if len(ids) == 0 {
		return out
	}
	list, err := a.attachments.ListByOwners(ctx, kind, ids)
	if err != nil {
		a.degraded("attachments", err, zap.String("kind", string(kind)), zap.Int("ids", len(ids)))
		return out
	}
	for _, att := range list {
		out[att.OwnerID] = append(out[att.OwnerID], att)
	}
	return out
}

func (a *Assembler) loadTally(ctx context.Context, kind models.OwnerKind, ids []int64, viewer uuid.UUID) Tally {
	list, err := a.reactions.ListByTargets(ctx, kind, ids)
	if err != nil {
		a.degraded("reactions", err, zap.String("kind", string(kind)), zap.Int("ids", len(ids)))
		return TallyReactions(nil, viewer)
	}
	return TallyReactions(list, viewer)
}

func (a *Assembler) loadComments(ctx context.Context, postIDs []int64) map[int64][]models.Comment {
	list, err := a.comments.ListByPosts(ctx, postIDs)
	if err != nil {
		a.degraded("comments", err, zap.Int("ids", len(postIDs)))
		return map[int64][]models.Comment{}
	}
	return GroupComments(list)
}

func (a *Assembler) degraded(source string, err error, fields ...zap.Field) {
	a.logger.Warn("hydration read failed, rendering without it",
		append(fields, zap.String("source", source), zap.Error(err))...)
	if a.metrics != nil {
		a.metrics.HydrationFailures.WithLabelValues(source).Inc()
	}
}

// Tally is the like aggregate of a set of targets.
type Tally struct {
	Counts        map[int64]int
	LikedByViewer map[int64]bool
}

// TallyReactions reduces reactions to a count per target and the set of
// targets viewer liked.
func TallyReactions(reactions []models.Reaction, viewer uuid.UUID) Tally {
	t := Tally{
		Counts:        make(map[int64]int),
		LikedByViewer: make(map[int64]bool),
	}
	for _, r := range reactions {
		t.Counts[r.TargetID]++
		if r.UserID == viewer {
			t.LikedByViewer[r.TargetID] = true
		}
	}
	return t
}

// GroupComments buckets comments by post, oldest first within each post.
// Comments with equal timestamps keep their input order.
func GroupComments(comments []models.Comment) map[int64][]models.Comment {
	out := make(map[int64][]models.Comment)
	for _, c := range comments {
		out[c.PostID] = append(out[c.PostID], c)
	}
	for _, group := range out {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
	}
	return out
}

func senderOrPlaceholder(profiles map[uuid.UUID]view.Sender, id uuid.UUID) view.Sender {
	if s, ok := profiles[id]; ok {
		return s
	}
	return view.Placeholder(id)
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
