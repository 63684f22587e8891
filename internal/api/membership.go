package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"go.uber.org/zap"
)

const (
	RoleMember    = "member"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

func validRole(role string) bool {
	switch role {
	case RoleMember, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// MembershipHandler handles joining, leaving and listing channel members.
// Every operation first resolves the channel inside the caller's tenant.
type MembershipHandler struct {
	repo     repository.MembershipRepository
	channels repository.ChannelRepository
	logger   *zap.Logger
}

func NewMembershipHandler(repo repository.MembershipRepository, channels repository.ChannelRepository, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{repo: repo, channels: channels, logger: logger}
}

type joinChannelRequest struct {
	Role string `json:"role"`
}

// Join handles POST /v1/channels/:id/join. The body is optional; the role
// defaults to member. Private channels cannot be self-joined.
func (h *MembershipHandler) Join(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}
	if ch.IsPrivate {
		c.JSON(http.StatusForbidden, gin.H{"error": "channel is private"})
		return
	}

	var req joinChannelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Role == "" {
		req.Role = RoleMember
	}
	if !validRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	if err := h.repo.AddMember(c.Request.Context(), ch.ID, middleware.GetUserID(c), req.Role); err != nil {
		h.logger.Error("failed to join channel", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join channel"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Leave handles POST /v1/channels/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}

	if err := h.repo.RemoveMember(c.Request.Context(), ch.ID, middleware.GetUserID(c)); err != nil {
		h.logger.Error("failed to leave channel", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave channel"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/channels/:id/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}

	members, err := h.repo.ListMembers(c.Request.Context(), ch.ID)
	if err != nil {
		h.logger.Error("failed to list members", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		return
	}

	c.JSON(http.StatusOK, members)
}

func (h *MembershipHandler) channel(c *gin.Context) (*models.Channel, bool) {
	channelID, ok := pathUUID(c, "id", "channel id")
	if !ok {
		return nil, false
	}

	ch, err := h.channels.GetByID(c.Request.Context(), middleware.GetTenantID(c), channelID)
	if err != nil {
		h.logger.Error("failed to get channel", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get channel"})
		return nil, false
	}
	if ch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return nil, false
	}
	return ch, true
}
