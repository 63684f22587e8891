package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
)

// PostHandler serves a channel's posts board and the comments under each
// post.
type PostHandler struct {
	posts     repository.PostRepository
	comments  repository.CommentRepository
	members   repository.MembershipRepository
	pipeline  Sender
	hydrator  Hydrator
	emitter   *realtime.Emitter
	maxUpload int64
	logger    *zap.Logger
}

func NewPostHandler(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	members repository.MembershipRepository,
	pipeline Sender,
	hydrator Hydrator,
	emitter *realtime.Emitter,
	maxUpload int64,
	logger *zap.Logger,
) *PostHandler {
	return &PostHandler{
		posts:     posts,
		comments:  comments,
		members:   members,
		pipeline:  pipeline,
		hydrator:  hydrator,
		emitter:   emitter,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Create handles POST /v1/channels/:id/posts
func (h *PostHandler) Create(c *gin.Context) {
	channelID, ok := pathUUID(c, "id", "channel id")
	if !ok {
		return
	}
	author := middleware.GetSender(c)
	if !requireMember(c, h.members, h.logger, channelID, author.ID) {
		return
	}

	content, files, err := readSendRequest(c, h.maxUpload)
	if err != nil {
		rejectSendRequest(c, err)
		return
	}

	res, err := h.pipeline.Send(c.Request.Context(), send.ChannelPost(h.posts, h.emitter, channelID), send.Request{
		Sender:  author,
		Content: content,
		Files:   files,
	})
	respondSent(c, h.logger, res, err)
}

// List handles GET /v1/channels/:id/posts?limit=50. Posts come back newest
// first with comments, attachments and like counts joined in.
func (h *PostHandler) List(c *gin.Context) {
	channelID, ok := pathUUID(c, "id", "channel id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)
	if !requireMember(c, h.members, h.logger, channelID, userID) {
		return
	}
	_, limit, ok := page(c)
	if !ok {
		return
	}

	posts, err := h.posts.ListByChannel(c.Request.Context(), channelID, limit)
	if err != nil {
		h.logger.Error("failed to list posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
		return
	}

	c.JSON(http.StatusOK, h.hydrator.Posts(c.Request.Context(), posts, userID))
}

type createCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// Comment handles POST /v1/posts/:id/comments
func (h *PostHandler) Comment(c *gin.Context) {
	postID, ok := pathInt64(c, "id", "post id")
	if !ok {
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body := strings.TrimSpace(req.Content)
	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment is empty"})
		return
	}

	author := middleware.GetSender(c)
	post, ok := h.post(c, postID, author)
	if !ok {
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), post.ID, author.ID, body)
	if err != nil {
		h.logger.Error("failed to create comment", zap.Int64("post_id", post.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create comment"})
		return
	}

	h.emitter.Emit(c.Request.Context(), realtime.OpInsert, realtime.TableComments, comment.ID, comment, realtime.PostsScope(post.ChannelID))

	c.JSON(http.StatusCreated, view.Comment{
		ID:        comment.ID,
		PostID:    comment.PostID,
		Author:    author,
		Content:   comment.Body,
		CreatedAt: comment.CreatedAt,
	})
}

// post loads the post and checks the caller can see its channel.
func (h *PostHandler) post(c *gin.Context, postID int64, caller view.Sender) (*models.Post, bool) {
	post, err := h.posts.GetByID(c.Request.Context(), postID)
	if err != nil {
		h.logger.Error("failed to get post", zap.Int64("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get post"})
		return nil, false
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return nil, false
	}
	if !requireMember(c, h.members, h.logger, post.ChannelID, caller.ID) {
		return nil, false
	}
	return post, true
}
