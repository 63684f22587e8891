package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
)

// Hydrator turns rows into views. *assembler.Assembler implements it.
type Hydrator interface {
	Messages(ctx context.Context, rows []models.Message, viewer uuid.UUID) []view.Message
	Posts(ctx context.Context, posts []models.Post, viewer uuid.UUID) []view.Post
	Senders(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]view.Sender
}

// MessageHandler serves channel messages. Direct messages live in
// DirectHandler but share Delete.
type MessageHandler struct {
	messages  repository.MessageRepository
	members   repository.MembershipRepository
	pipeline  Sender
	hydrator  Hydrator
	emitter   *realtime.Emitter
	maxUpload int64
	logger    *zap.Logger
}

func NewMessageHandler(
	messages repository.MessageRepository,
	members repository.MembershipRepository,
	pipeline Sender,
	hydrator Hydrator,
	emitter *realtime.Emitter,
	maxUpload int64,
	logger *zap.Logger,
) *MessageHandler {
	return &MessageHandler{
		messages:  messages,
		members:   members,
		pipeline:  pipeline,
		hydrator:  hydrator,
		emitter:   emitter,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Create handles POST /v1/channels/:id/messages as JSON or multipart.
// Attachment failures do not fail the request; they come back in
// file_errors next to the stored message.
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, ok := pathUUID(c, "id", "channel id")
	if !ok {
		return
	}
	sender := middleware.GetSender(c)
	if !requireMember(c, h.members, h.logger, channelID, sender.ID) {
		return
	}

	content, files, err := readSendRequest(c, h.maxUpload)
	if err != nil {
		rejectSendRequest(c, err)
		return
	}

	target := send.ChannelMessage(h.messages, h.emitter, channelID)
	res, err := h.pipeline.Send(c.Request.Context(), target, send.Request{
		Sender:  sender,
		Content: content,
		Files:   files,
	})
	respondSent(c, h.logger, res, err)
}

// List handles GET /v1/channels/:id/messages?before=123&limit=50 and
// returns the page newest first.
func (h *MessageHandler) List(c *gin.Context) {
	channelID, ok := pathUUID(c, "id", "channel id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)
	if !requireMember(c, h.members, h.logger, channelID, userID) {
		return
	}
	before, limit, ok := page(c)
	if !ok {
		return
	}

	rows, err := h.messages.ListByScope(c.Request.Context(), channelID, before, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, h.hydrator.Messages(c.Request.Context(), rows, userID))
}

// Delete handles DELETE /v1/messages/:id. Only the sender may delete; the
// removal is published to every scope the message was shown in.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := pathInt64(c, "id", "message id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	msg, err := h.messages.GetByID(c.Request.Context(), messageID)
	if err != nil {
		h.logger.Error("failed to get message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		return
	}

	deleted, err := h.messages.Delete(c.Request.Context(), messageID, userID)
	if err != nil {
		h.logger.Error("failed to delete message", zap.Int64("message_id", messageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	if !deleted {
		// Lost a race with another delete.
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	h.emitter.Emit(c.Request.Context(), realtime.OpDelete, realtime.TableMessages, msg.ID, msg, messageScopes(*msg)...)
	c.Status(http.StatusNoContent)
}
