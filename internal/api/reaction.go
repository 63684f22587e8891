package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"go.uber.org/zap"
)

// ReactionHandler toggles likes on messages and posts. Both directions are
// idempotent; an event is published only when the like actually changed.
type ReactionHandler struct {
	reactions repository.ReactionRepository
	messages  repository.MessageRepository
	posts     repository.PostRepository
	members   repository.MembershipRepository
	emitter   *realtime.Emitter
	logger    *zap.Logger
}

func NewReactionHandler(
	reactions repository.ReactionRepository,
	messages repository.MessageRepository,
	posts repository.PostRepository,
	members repository.MembershipRepository,
	emitter *realtime.Emitter,
	logger *zap.Logger,
) *ReactionHandler {
	return &ReactionHandler{
		reactions: reactions,
		messages:  messages,
		posts:     posts,
		members:   members,
		emitter:   emitter,
		logger:    logger,
	}
}

type likeResponse struct {
	Liked   bool `json:"liked"`
	Changed bool `json:"changed"`
}

// LikeMessage handles POST /v1/messages/:id/like
func (h *ReactionHandler) LikeMessage(c *gin.Context) { h.onMessage(c, true) }

// UnlikeMessage handles DELETE /v1/messages/:id/like
func (h *ReactionHandler) UnlikeMessage(c *gin.Context) { h.onMessage(c, false) }

// LikePost handles POST /v1/posts/:id/like
func (h *ReactionHandler) LikePost(c *gin.Context) { h.onPost(c, true) }

// UnlikePost handles DELETE /v1/posts/:id/like
func (h *ReactionHandler) UnlikePost(c *gin.Context) { h.onPost(c, false) }

func (h *ReactionHandler) onMessage(c *gin.Context, like bool) {
	messageID, ok := pathInt64(c, "id", "message id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	msg, err := h.messages.GetByID(c.Request.Context(), messageID)
	if err != nil {
		h.logger.Error("failed to get message", zap.Int64("message_id", messageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if msg.IsDirect() {
		if _, ok := msg.Counterpart(userID); !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "not part of this conversation"})
			return
		}
	} else if !requireMember(c, h.members, h.logger, msg.ScopeID, userID) {
		return
	}

	h.toggle(c, like, models.OwnerMessage, msg.ID, userID, chatScope(*msg))
}

func (h *ReactionHandler) onPost(c *gin.Context, like bool) {
	postID, ok := pathInt64(c, "id", "post id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	post, err := h.posts.GetByID(c.Request.Context(), postID)
	if err != nil {
		h.logger.Error("failed to get post", zap.Int64("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if !requireMember(c, h.members, h.logger, post.ChannelID, userID) {
		return
	}

	h.toggle(c, like, models.OwnerPost, post.ID, userID, realtime.PostsScope(post.ChannelID))
}

func (h *ReactionHandler) toggle(c *gin.Context, like bool, kind models.OwnerKind, targetID int64, userID uuid.UUID, scope realtime.Scope) {
	ctx := c.Request.Context()

	var (
		changed bool
		err     error
		op      realtime.Op
	)
	if like {
		changed, err = h.reactions.Add(ctx, kind, targetID, userID)
		op = realtime.OpInsert
	} else {
		changed, err = h.reactions.Remove(ctx, kind, targetID, userID)
		op = realtime.OpDelete
	}
	if err != nil {
		h.logger.Error("failed to update like",
			zap.String("kind", string(kind)),
			zap.Int64("target_id", targetID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}

	if changed {
		row := models.Reaction{TargetKind: kind, TargetID: targetID, UserID: userID, CreatedAt: time.Now().UTC()}
		h.emitter.Emit(ctx, op, realtime.TableReactions, targetID, row, scope)
	}
	c.JSON(http.StatusOK, likeResponse{Liked: like, Changed: changed})
}
