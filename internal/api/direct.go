package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/conversation"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/send"
	"go.uber.org/zap"
)

// DirectHandler serves one-to-one conversations: the inbox, the history
// with one counterpart, sending, and marking a conversation read.
type DirectHandler struct {
	messages  repository.MessageRepository
	users     repository.UserRepository
	pipeline  Sender
	hydrator  Hydrator
	emitter   *realtime.Emitter
	maxUpload int64
	logger    *zap.Logger
}

func NewDirectHandler(
	messages repository.MessageRepository,
	users repository.UserRepository,
	pipeline Sender,
	hydrator Hydrator,
	emitter *realtime.Emitter,
	maxUpload int64,
	logger *zap.Logger,
) *DirectHandler {
	return &DirectHandler{
		messages:  messages,
		users:     users,
		pipeline:  pipeline,
		hydrator:  hydrator,
		emitter:   emitter,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Conversations handles GET /v1/dms. One row per counterpart, most recent
// activity first, with the unread count of messages addressed to the
// caller.
func (h *DirectHandler) Conversations(c *gin.Context) {
	me := middleware.GetUserID(c)

	msgs, err := h.messages.ListDirectForUser(c.Request.Context(), me)
	if err != nil {
		h.logger.Error("failed to list direct messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	convs := conversation.Fold(msgs, me)
	profiles := h.hydrator.Senders(c.Request.Context(), conversation.Counterparts(convs))
	c.JSON(http.StatusOK, conversation.WithProfiles(convs, profiles))
}

// History handles GET /v1/dms/:user_id/messages?before=&limit=
func (h *DirectHandler) History(c *gin.Context) {
	other, ok := h.counterpart(c)
	if !ok {
		return
	}
	before, limit, ok := page(c)
	if !ok {
		return
	}
	me := middleware.GetUserID(c)

	rows, err := h.messages.ListByScope(c.Request.Context(), models.DirectScopeID(me, other), before, limit)
	if err != nil {
		h.logger.Error("failed to list direct messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, h.hydrator.Messages(c.Request.Context(), rows, me))
}

// Send handles POST /v1/dms/:user_id/messages as JSON or multipart.
func (h *DirectHandler) Send(c *gin.Context) {
	other, ok := h.counterpart(c)
	if !ok {
		return
	}
	sender := middleware.GetSender(c)

	content, files, err := readSendRequest(c, h.maxUpload)
	if err != nil {
		rejectSendRequest(c, err)
		return
	}

	res, err := h.pipeline.Send(c.Request.Context(), send.DirectMessage(h.messages, h.emitter, sender.ID, other), send.Request{
		Sender:  sender,
		Content: content,
		Files:   files,
	})
	respondSent(c, h.logger, res, err)
}

// MarkRead handles POST /v1/dms/:user_id/read. Every message the
// counterpart sent to the caller is marked read, and each changed row is
// published so open views and inboxes drop their unread badge.
func (h *DirectHandler) MarkRead(c *gin.Context) {
	other, ok := h.counterpart(c)
	if !ok {
		return
	}
	me := middleware.GetUserID(c)

	changed, err := h.messages.MarkRead(c.Request.Context(), me, other)
	if err != nil {
		h.logger.Error("failed to mark messages read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	for _, m := range changed {
		h.emitter.Emit(c.Request.Context(), realtime.OpUpdate, realtime.TableMessages, m.ID, m, messageScopes(m)...)
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(changed)})
}

// counterpart resolves :user_id to a user of the caller's tenant.
func (h *DirectHandler) counterpart(c *gin.Context) (uuid.UUID, bool) {
	other, ok := pathUUID(c, "user_id", "user id")
	if !ok {
		return uuid.Nil, false
	}

	user, err := h.users.GetByID(c.Request.Context(), middleware.GetTenantID(c), other)
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return uuid.Nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return uuid.Nil, false
	}
	return user.ID, true
}
