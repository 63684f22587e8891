package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/middleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers is everything the router mounts. A nil handler leaves its
// routes out.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Channels    *ChannelHandler
	Memberships *MembershipHandler
	Messages    *MessageHandler
	Posts       *PostHandler
	Reactions   *ReactionHandler
	Direct      *DirectHandler
	WS          *WSHandler

	// Health maps a dependency name to its probe for GET /v1/health.
	Health map[string]HealthCheck
}

// RegisterRoutes mounts the public endpoints and, behind the token check,
// everything else under /v1.
func RegisterRoutes(r *gin.Engine, h Handlers, jwtSecret string) {
	r.GET("/v1/health", health(h.Health))

	if h.Auth != nil {
		r.POST("/v1/auth/signup", h.Auth.Signup)
		r.POST("/v1/auth/login", h.Auth.Login)
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtSecret))

	if h.Users != nil {
		v1.GET("/users/me", h.Users.GetMe)
		v1.GET("/users/:id", h.Users.Profile)
	}
	if h.Channels != nil {
		v1.POST("/channels", h.Channels.Create)
		v1.GET("/channels", h.Channels.List)
		v1.GET("/channels/:id", h.Channels.GetByID)
	}
	if h.Memberships != nil {
		v1.POST("/channels/:id/join", h.Memberships.Join)
		v1.POST("/channels/:id/leave", h.Memberships.Leave)
		v1.GET("/channels/:id/members", h.Memberships.ListMembers)
	}
	if h.Messages != nil {
		v1.POST("/channels/:id/messages", h.Messages.Create)
		v1.GET("/channels/:id/messages", h.Messages.List)
		v1.DELETE("/messages/:id", h.Messages.Delete)
	}
	if h.Posts != nil {
		v1.POST("/channels/:id/posts", h.Posts.Create)
		v1.GET("/channels/:id/posts", h.Posts.List)
		v1.POST("/posts/:id/comments", h.Posts.Comment)
	}
	if h.Reactions != nil {
		v1.POST("/messages/:id/like", h.Reactions.LikeMessage)
		v1.DELETE("/messages/:id/like", h.Reactions.UnlikeMessage)
		v1.POST("/posts/:id/like", h.Reactions.LikePost)
		v1.DELETE("/posts/:id/like", h.Reactions.UnlikePost)
	}
	if h.Direct != nil {
		v1.GET("/dms", h.Direct.Conversations)
		v1.GET("/dms/:user_id/messages", h.Direct.History)
		v1.POST("/dms/:user_id/messages", h.Direct.Send)
		v1.POST("/dms/:user_id/read", h.Direct.MarkRead)
	}
	if h.WS != nil {
		v1.GET("/ws", h.WS.Serve)
	}
}

// health answers 200 when every probe passes and 503 otherwise, listing
// each dependency's state.
func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		deps := make(gin.H, len(checks))
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "dependencies": deps})
	}
}
