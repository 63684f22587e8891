// Package view holds the render-ready shapes sent to clients: a stored row
// joined with its sender profile, attachments and derived counts.
package view

import (
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
)

// UnknownUser is shown for senders whose profile could not be loaded.
const UnknownUser = "Unknown User"

// Entry is anything a timeline can hold.
type Entry interface {
	Key() int64
	Timestamp() time.Time
}

type Sender struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
}

// SenderFromUser maps a stored profile to its public shape.
func SenderFromUser(u models.User) Sender {
	return Sender{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// Placeholder is the sender shown when the profile is missing.
func Placeholder(id uuid.UUID) Sender {
	return Sender{ID: id, DisplayName: UnknownUser}
}

type Message struct {
	ID             int64               `json:"id"`
	ScopeID        uuid.UUID           `json:"scope_id"`
	Sender         Sender              `json:"sender"`
	RecipientID    *uuid.UUID          `json:"recipient_id,omitempty"`
	Content        string              `json:"content"`
	Read           bool                `json:"read"`
	HasAttachments bool                `json:"has_attachments"`
	Attachments    []models.Attachment `json:"attachments"`
	LikeCount      int                 `json:"like_count"`
	LikedByMe      bool                `json:"liked_by_me"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (m Message) Key() int64           { return m.ID }
func (m Message) Timestamp() time.Time { return m.CreatedAt }

// NewMessage builds the bare view of a stored row: no attachments, no
// likes.
func NewMessage(row models.Message, sender Sender) Message {
	return Message{
		ID:             row.ID,
		ScopeID:        row.ScopeID,
		Sender:         sender,
		RecipientID:    row.RecipientID,
		Content:        row.Body,
		Read:           row.Read,
		HasAttachments: row.HasAttachments,
		Attachments:    []models.Attachment{},
		CreatedAt:      row.CreatedAt,
	}
}

type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	Author    Sender    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID             int64               `json:"id"`
	ChannelID      uuid.UUID           `json:"channel_id"`
	Author         Sender              `json:"author"`
	Content        string              `json:"content"`
	HasAttachments bool                `json:"has_attachments"`
	Attachments    []models.Attachment `json:"attachments"`
	LikeCount      int                 `json:"like_count"`
	LikedByMe      bool                `json:"liked_by_me"`
	Comments       []Comment           `json:"comments"`
	CommentCount   int                 `json:"comment_count"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (p Post) Key() int64           { return p.ID }
func (p Post) Timestamp() time.Time { return p.CreatedAt }

func NewPost(row models.Post, author Sender) Post {
	return Post{
		ID:             row.ID,
		ChannelID:      row.ChannelID,
		Author:         author,
		Content:        row.Body,
		HasAttachments: row.HasAttachments,
		Attachments:    []models.Attachment{},
		Comments:       []Comment{},
		CreatedAt:      row.CreatedAt,
	}
}
