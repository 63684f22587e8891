package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
)

// UserHandler serves the caller's own account and the public profiles of
// other users in the same workspace.
type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me. A valid token whose user row is gone
// gets 404.
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.repo.GetByID(c.Request.Context(), middleware.GetTenantID(c), middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// Profile handles GET /v1/users/:id and returns only the fields shown next
// to a message. Users of other tenants are reported as not found.
func (h *UserHandler) Profile(c *gin.Context) {
	userID, ok := pathUUID(c, "id", "user id")
	if !ok {
		return
	}

	user, err := h.repo.GetByID(c.Request.Context(), middleware.GetTenantID(c), userID)
	if err != nil {
		h.logger.Error("failed to get user", zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, view.SenderFromUser(*user))
}
