// Package conversation derives the direct-message inbox: one row per
// counterpart with the last message and the unread count.
package conversation

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/view"
)

type Conversation struct {
	CounterpartID   uuid.UUID `json:"counterpart_id"`
	LastMessageID   int64     `json:"last_message_id"`
	LastMessageText string    `json:"last_message_text"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
}

// Fold groups messages by the participant other than me. messages must be
// newest first; the result does not depend on anything else, and the
// input is left untouched.
//
// The last message of a conversation is replaced only by a strictly newer
// one, so among equal timestamps the first one seen wins. Unread counts
// messages addressed to me that are not read. Messages me is not part of
// are ignored.
func Fold(messages []models.Message, me uuid.UUID) []Conversation {
	byCounterpart := make(map[uuid.UUID]*Conversation)
	for _, m := range messages {
		other, ok := m.Counterpart(me)
		if !ok {
			continue
		}
		c, exists := byCounterpart[other]
		if !exists {
			c = &Conversation{
				CounterpartID:   other,
				LastMessageID:   m.ID,
				LastMessageText: m.Body,
				LastMessageAt:   m.CreatedAt,
			}
			byCounterpart[other] = c
		} else if m.CreatedAt.After(c.LastMessageAt) {
			c.LastMessageID = m.ID
			c.LastMessageText = m.Body
			c.LastMessageAt = m.CreatedAt
		}
		if isUnreadFor(m, me) {
			c.UnreadCount++
		}
	}

	out := make([]Conversation, 0, len(byCounterpart))
	for _, c := range byCounterpart {
		out = append(out, *c)
	}
	sortConversations(out)
	return out
}

// sortConversations orders newest activity first. Counterpart id breaks
// ties so the order is stable across folds.
func sortConversations(cs []Conversation) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].LastMessageAt.Equal(cs[j].LastMessageAt) {
			return cs[i].LastMessageAt.After(cs[j].LastMessageAt)
		}
		return cs[i].CounterpartID.String() < cs[j].CounterpartID.String()
	})
}

func isUnreadFor(m models.Message, me uuid.UUID) bool {
	return m.RecipientID != nil && *m.RecipientID == me && !m.Read
}

// Row is a conversation with its counterpart's profile.
type Row struct {
	Conversation
	Counterpart view.Sender `json:"counterpart"`
}

// WithProfiles attaches profiles, using placeholders for unknown ids.
func WithProfiles(cs []Conversation, profiles map[uuid.UUID]view.Sender) []Row {
	out := make([]Row, 0, len(cs))
	for _, c := range cs {
		p, ok := profiles[c.CounterpartID]
		if !ok {
			p = view.Placeholder(c.CounterpartID)
		}
		out = append(out, Row{Conversation: c, Counterpart: p})
	}
	return out
}

// Counterparts lists the counterpart ids of cs in order.
func Counterparts(cs []Conversation) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.CounterpartID)
	}
	return ids
}
