package conversation

import (
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
)

type tracked struct {
	counterpart uuid.UUID
	unread      bool
}

// Index keeps the conversation list up to date one event at a time
// instead of refolding every message. Applying the same event twice is a
// no-op, so it is safe under at-least-once delivery.
//
// Index is not safe for concurrent use.
type Index struct {
	me       uuid.UUID
	convs    map[uuid.UUID]*Conversation
	messages map[int64]tracked
}

func NewIndex(me uuid.UUID) *Index {
	return &Index{
		me:       me,
		convs:    make(map[uuid.UUID]*Conversation),
		messages: make(map[int64]tracked),
	}
}

// Reset rebuilds the index from a full newest-first history.
func (x *Index) Reset(messages []models.Message) {
	x.convs = make(map[uuid.UUID]*Conversation)
	x.messages = make(map[int64]tracked)
	for _, c := range Fold(messages, x.me) {
		x.convs[c.CounterpartID] = &c
	}
	for _, m := range messages {
		if other, ok := m.Counterpart(x.me); ok {
			x.messages[m.ID] = tracked{counterpart: other, unread: isUnreadFor(m, x.me)}
		}
	}
}

// Insert applies a new message. It reports whether the list changed.
// A message already in the index is treated as an update.
func (x *Index) Insert(m models.Message) bool {
	other, ok := m.Counterpart(x.me)
	if !ok {
		return false
	}
	if _, known := x.messages[m.ID]; known {
		return x.Update(m)
	}

	unread := isUnreadFor(m, x.me)
	x.messages[m.ID] = tracked{counterpart: other, unread: unread}

	c, exists := x.convs[other]
	if !exists {
		c = &Conversation{CounterpartID: other}
		x.convs[other] = c
		setLast(c, m)
	} else if newer(m, c) {
		setLast(c, m)
	}
	if unread {
		c.UnreadCount++
	}
	return true
}

// Update applies a change to a message, such as it being read.
func (x *Index) Update(m models.Message) bool {
	t, known := x.messages[m.ID]
	if !known {
		return x.Insert(m)
	}
	c := x.convs[t.counterpart]
	changed := false

	unread := isUnreadFor(m, x.me)
	if unread != t.unread {
		if unread {
			c.UnreadCount++
		} else {
			c.UnreadCount--
		}
		x.messages[m.ID] = tracked{counterpart: t.counterpart, unread: unread}
		changed = true
	}
	if c.LastMessageID == m.ID && c.LastMessageText != m.Body {
		c.LastMessageText = m.Body
		changed = true
	}
	return changed
}

// Delete removes a message. When it was the last message of its
// conversation the index cannot know the one before it, and Delete
// returns refold=true: the caller should Reset from a fresh fetch.
func (x *Index) Delete(id int64) (changed, refold bool) {
	t, known := x.messages[id]
	if !known {
		return false, false
	}
	delete(x.messages, id)

	c := x.convs[t.counterpart]
	if t.unread {
		c.UnreadCount--
	}
	if c.LastMessageID == id {
		return true, true
	}
	return true, false
}

// List returns the conversations sorted like Fold.
func (x *Index) List() []Conversation {
	out := make([]Conversation, 0, len(x.convs))
	for _, c := range x.convs {
		out = append(out, *c)
	}
	sortConversations(out)
	return out
}

func (x *Index) Len() int {
	return len(x.convs)
}

// newer matches Fold over a history sorted by created_at then id, both
// descending: on equal timestamps the higher id is the later message.
func newer(m models.Message, c *Conversation) bool {
	if m.CreatedAt.Equal(c.LastMessageAt) {
		return m.ID > c.LastMessageID
	}
	return m.CreatedAt.After(c.LastMessageAt)
}

func setLast(c *Conversation, m models.Message) {
	c.LastMessageID = m.ID
	c.LastMessageText = m.Body
	c.LastMessageAt = m.CreatedAt
}
