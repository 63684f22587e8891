package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
)

// Every method takes ctx first and returns explicit errors. Single-row
// lookups return nil, nil when the row does not exist. List methods return
// an empty slice, never nil.

// TenantRepository creates workspaces.
type TenantRepository interface {
	Create(ctx context.Context, name string) (*models.Tenant, error)
}

// ChannelRepository defines the contract for channel data operations.
type ChannelRepository interface {
	// Create inserts a new channel and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, tenantID uuid.UUID, name string, isPrivate bool) (*models.Channel, error)

	GetByID(ctx context.Context, tenantID uuid.UUID, channelID uuid.UUID) (*models.Channel, error)

	// ListByTenant returns all channels of the tenant, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error)
}

// MembershipRepository handles who belongs to which channel.
type MembershipRepository interface {
	// AddMember is idempotent: joining twice is not an error.
	AddMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, role string) error

	// RemoveMember is a no-op if the user is not a member.
	RemoveMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) error

	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)

	// IsMember is checked before every channel send and every channel
	// subscription.
	IsMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (bool, error)
}

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error)

	// GetByEmail is global, not tenant-scoped. Used for login.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListByIDs fetches a batch of profiles in one round trip. Ids with no
	// row are simply absent from the result.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

// MessageRepository handles chat message persistence for both channel and
// direct messages.
type MessageRepository interface {
	// Create persists a message with HasAttachments=false and returns it
	// with ID and CreatedAt populated. recipientID is nil for channel messages.
	Create(ctx context.Context, scopeID uuid.UUID, senderID uuid.UUID, recipientID *uuid.UUID, body string) (*models.Message, error)

	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// ListByScope returns messages of one scope, newest first.
	// before=0 means "from the latest".
	ListByScope(ctx context.Context, scopeID uuid.UUID, before int64, limit int) ([]models.Message, error)

	// ListDirectForUser returns every direct message the user sent or
	// received, newest first.
	ListDirectForUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error)

	// SetHasAttachments flips the flag to true. No-op if already true.
	SetHasAttachments(ctx context.Context, messageID int64) error

	// MarkRead marks every unread message from sender to recipient as read
	// and returns the rows it changed.
	MarkRead(ctx context.Context, recipientID uuid.UUID, senderID uuid.UUID) ([]models.Message, error)

	// Delete removes the message if senderID owns it. Returns false when
	// nothing was deleted.
	Delete(ctx context.Context, messageID int64, senderID uuid.UUID) (bool, error)
}

// AttachmentRepository stores attachment records (not bytes).
type AttachmentRepository interface {
	Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error)

	// ListByOwners returns attachments of all given owners, oldest first.
	ListByOwners(ctx context.Context, kind models.OwnerKind, ownerIDs []int64) ([]models.Attachment, error)
}

// ReactionRepository handles likes on messages and posts.
type ReactionRepository interface {
	// Add returns false if the user already liked the target.
	Add(ctx context.Context, kind models.OwnerKind, targetID int64, userID uuid.UUID) (bool, error)

	// Remove returns false if there was nothing to remove.
	Remove(ctx context.Context, kind models.OwnerKind, targetID int64, userID uuid.UUID) (bool, error)

	ListByTargets(ctx context.Context, kind models.OwnerKind, targetIDs []int64) ([]models.Reaction, error)
}

// PostRepository handles channel posts.
type PostRepository interface {
	Create(ctx context.Context, channelID uuid.UUID, authorID uuid.UUID, body string) (*models.Post, error)
	GetByID(ctx context.Context, postID int64) (*models.Post, error)

	// ListByChannel returns the latest posts of a channel, newest first.
	ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Post, error)

	SetHasAttachments(ctx context.Context, postID int64) error

	// Delete removes the post if authorID wrote it.
	Delete(ctx context.Context, postID int64, authorID uuid.UUID) (bool, error)
}

// CommentRepository handles comments under posts.
type CommentRepository interface {
	Create(ctx context.Context, postID int64, authorID uuid.UUID, body string) (*models.Comment, error)

	// ListByPosts returns comments of all given posts, oldest first.
	ListByPosts(ctx context.Context, postIDs []int64) ([]models.Comment, error)
}
