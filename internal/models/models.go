package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Tenant is the top-level isolation boundary (a workspace).
// Every user and channel belongs to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a person within a tenant. DisplayName and AvatarURL are the
// profile fields shown next to everything the user writes.
type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    *string   `json:"avatar_url"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Channel is a chat room within a tenant (like #general or #incident-123).
type Channel struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelMember is the join row between channels and users.
// Role is "member", "admin" or "moderator"; handlers validate it.
type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
}

// Message is a single chat message.
//
// ScopeID is the channel id for channel messages. Direct messages carry
// the pair id from DirectScopeID and a non-nil RecipientID.
//
// Body may be empty only when the message has attachments. After insert
// the row changes in two ways only: HasAttachments false->true, and Read
// false->true on direct messages.
type Message struct {
	ID             int64      `json:"id"`
	ScopeID        uuid.UUID  `json:"scope_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	Body           string     `json:"body"`
	Read           bool       `json:"read"`
	HasAttachments bool       `json:"has_attachments"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsDirect reports whether the message belongs to a one-to-one conversation.
func (m Message) IsDirect() bool {
	return m.RecipientID != nil
}

// Counterpart returns the other participant of a direct message as seen
// from me. The second value is false for channel messages and for
// messages me is not part of.
func (m Message) Counterpart(me uuid.UUID) (uuid.UUID, bool) {
	if m.RecipientID == nil {
		return uuid.Nil, false
	}
	switch me {
	case m.SenderID:
		return *m.RecipientID, true
	case *m.RecipientID:
		return m.SenderID, true
	}
	return uuid.Nil, false
}

// Post is a longer-lived channel post that collects comments and likes.
type Post struct {
	ID             int64     `json:"id"`
	ChannelID      uuid.UUID `json:"channel_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	Body           string    `json:"body"`
	HasAttachments bool      `json:"has_attachments"`
	CreatedAt      time.Time `json:"created_at"`
}

// Comment is a reply under a Post.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnerKind names the table an attachment or reaction points into.
type OwnerKind string

const (
	OwnerMessage OwnerKind = "message"
	OwnerPost    OwnerKind = "post"
)

func (k OwnerKind) Valid() bool {
	return k == OwnerMessage || k == OwnerPost
}

// Attachment is a file owned by exactly one message or post. URL points
// into object storage; the bytes are never stored here.
type Attachment struct {
	ID        uuid.UUID `json:"id"`
	OwnerKind OwnerKind `json:"owner_kind"`
	OwnerID   int64     `json:"owner_id"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Reaction is a like. Existence is the whole payload: counts are derived.
type Reaction struct {
	TargetKind OwnerKind `json:"target_kind"`
	TargetID   int64     `json:"target_id"`
	UserID     uuid.UUID `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

var directNamespace = uuid.MustParse("6f1c3a52-9d0e-4c1b-8f43-2b7a5d9e0c11")

// DirectScopeID returns the scope id shared by both participants of a
// direct conversation. It is symmetric: DirectScopeID(a, b) == DirectScopeID(b, a).
func DirectScopeID(a, b uuid.UUID) uuid.UUID {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	key := make([]byte, 0, 32)
	key = append(key, a[:]...)
	key = append(key, b[:]...)
	return uuid.NewSHA1(directNamespace, key)
}
