package send

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/view"
)

type MessageWriter interface {
	Create(ctx context.Context, scopeID uuid.UUID, senderID uuid.UUID, recipientID *uuid.UUID, body string) (*models.Message, error)
	SetHasAttachments(ctx context.Context, messageID int64) error
	Delete(ctx context.Context, messageID int64, senderID uuid.UUID) (bool, error)
}

type PostWriter interface {
	Create(ctx context.Context, channelID uuid.UUID, authorID uuid.UUID, body string) (*models.Post, error)
	SetHasAttachments(ctx context.Context, postID int64) error
	Delete(ctx context.Context, postID int64, authorID uuid.UUID) (bool, error)
}

// Target is where one send writes to. A Target holds the row it inserted,
// so each send needs a fresh one.
type Target interface {
	// Scope is the view the sender is expected to be looking at.
	Scope() realtime.Scope
	OwnerKind() models.OwnerKind
	// StoragePrefix is prepended to attachment keys.
	StoragePrefix() string

	Insert(ctx context.Context, senderID uuid.UUID, content string) (int64, error)
	MarkHasAttachments(ctx context.Context) error
	// Discard deletes the inserted row. Used when nothing of the send
	// survived.
	Discard(ctx context.Context) error
	Entry(sender view.Sender, attachments []models.Attachment) view.Entry
	// Announce publishes the inserted row to every scope that shows it.
	Announce(ctx context.Context)
}

type messageTarget struct {
	messages    MessageWriter
	emitter     *realtime.Emitter
	scopeID     uuid.UUID
	recipientID *uuid.UUID
	view        realtime.Scope
	fanout      []realtime.Scope
	prefix      string

	row *models.Message
}

// ChannelMessage targets a channel's message stream.
func ChannelMessage(messages MessageWriter, emitter *realtime.Emitter, channelID uuid.UUID) Target {
	scope := realtime.ChannelScope(channelID)
	return &messageTarget{
		messages: messages,
		emitter:  emitter,
		scopeID:  channelID,
		view:     scope,
		fanout:   []realtime.Scope{scope},
		prefix:   "channels/" + channelID.String(),
	}
}

// DirectMessage targets the conversation between sender and recipient.
// The row is also announced to both participants' inboxes.
func DirectMessage(messages MessageWriter, emitter *realtime.Emitter, senderID, recipientID uuid.UUID) Target {
	pair := models.DirectScopeID(senderID, recipientID)
	scope := realtime.DirectScope(pair)
	fanout := []realtime.Scope{scope, realtime.InboxScope(senderID)}
	if recipientID != senderID {
		fanout = append(fanout, realtime.InboxScope(recipientID))
	}
	return &messageTarget{
		messages:    messages,
		emitter:     emitter,
		scopeID:     pair,
		recipientID: &recipientID,
		view:        scope,
		fanout:      fanout,
		prefix:      "dms/" + pair.String(),
	}
}

func (t *messageTarget) Scope() realtime.Scope       { return t.view }
func (t *messageTarget) OwnerKind() models.OwnerKind { return models.OwnerMessage }
func (t *messageTarget) StoragePrefix() string       { return t.prefix }

func (t *messageTarget) Insert(ctx context.Context, senderID uuid.UUID, content string) (int64, error) {
	row, err := t.messages.Create(ctx, t.scopeID, senderID, t.recipientID, content)
	if err != nil {
		return 0, err
	}
	t.row = row
	return row.ID, nil
}

func (t *messageTarget) MarkHasAttachments(ctx context.Context) error {
	if err := t.messages.SetHasAttachments(ctx, t.row.ID); err != nil {
		return err
	}
	t.row.HasAttachments = true
	return nil
}

func (t *messageTarget) Discard(ctx context.Context) error {
	if _, err := t.messages.Delete(ctx, t.row.ID, t.row.SenderID); err != nil {
		return fmt.Errorf("discard message %d: %w", t.row.ID, err)
	}
	return nil
}

func (t *messageTarget) Entry(sender view.Sender, attachments []models.Attachment) view.Entry {
	m := view.NewMessage(*t.row, sender)
	if len(attachments) > 0 {
		m.Attachments = attachments
	}
	return m
}

func (t *messageTarget) Announce(ctx context.Context) {
	t.emitter.Emit(ctx, realtime.OpInsert, realtime.TableMessages, t.row.ID, t.row, t.fanout...)
}

type postTarget struct {
	posts     PostWriter
	emitter   *realtime.Emitter
	channelID uuid.UUID

	row *models.Post
}

// ChannelPost targets a channel's posts board.
func ChannelPost(posts PostWriter, emitter *realtime.Emitter, channelID uuid.UUID) Target {
	return &postTarget{posts: posts, emitter: emitter, channelID: channelID}
}

func (t *postTarget) Scope() realtime.Scope       { return realtime.PostsScope(t.channelID) }
func (t *postTarget) OwnerKind() models.OwnerKind { return models.OwnerPost }
func (t *postTarget) StoragePrefix() string       { return "posts/" + t.channelID.String() }

func (t *postTarget) Insert(ctx context.Context, senderID uuid.UUID, content string) (int64, error) {
	row, err := t.posts.Create(ctx, t.channelID, senderID, content)
	if err != nil {
		return 0, err
	}
	t.row = row
	return row.ID, nil
}

func (t *postTarget) MarkHasAttachments(ctx context.Context) error {
	if err := t.posts.SetHasAttachments(ctx, t.row.ID); err != nil {
		return err
	}
	t.row.HasAttachments = true
	return nil
}

func (t *postTarget) Discard(ctx context.Context) error {
	if _, err := t.posts.Delete(ctx, t.row.ID, t.row.AuthorID); err != nil {
		return fmt.Errorf("discard post %d: %w", t.row.ID, err)
	}
	return nil
}

func (t *postTarget) Entry(sender view.Sender, attachments []models.Attachment) view.Entry {
	p := view.NewPost(*t.row, sender)
	if len(attachments) > 0 {
		p.Attachments = attachments
	}
	return p
}

func (t *postTarget) Announce(ctx context.Context) {
	t.emitter.Emit(ctx, realtime.OpInsert, realtime.TablePosts, t.row.ID, t.row, t.Scope())
}
