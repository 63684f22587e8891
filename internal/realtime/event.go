// Package realtime carries row change events from writers to the views
// that render those rows.
//
// Delivery is at-least-once and unordered. Consumers sort by created_at
// and de-duplicate by id; they never rely on arrival order.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"

	// OpResync is synthesized by a broker when its transport reconnected
	// underneath an open stream; events may have been missed.
	OpResync Op = "RESYNC"
)

type Table string

const (
	TableMessages  Table = "messages"
	TablePosts     Table = "posts"
	TableComments  Table = "comments"
	TableReactions Table = "reactions"
)

type ScopeKind string

const (
	ScopeChannel ScopeKind = "channel"
	ScopeDirect  ScopeKind = "dm"
	ScopePosts   ScopeKind = "posts"
	ScopeInbox   ScopeKind = "inbox"
)

// Scope partitions subscriptions, caches and fetch filters. For
// ScopeDirect the id is the pair id from models.DirectScopeID; for
// ScopeInbox it is the user id.
type Scope struct {
	Kind ScopeKind
	ID   uuid.UUID
}

func ChannelScope(channelID uuid.UUID) Scope { return Scope{Kind: ScopeChannel, ID: channelID} }
func DirectScope(pairID uuid.UUID) Scope     { return Scope{Kind: ScopeDirect, ID: pairID} }
func PostsScope(channelID uuid.UUID) Scope   { return Scope{Kind: ScopePosts, ID: channelID} }
func InboxScope(userID uuid.UUID) Scope      { return Scope{Kind: ScopeInbox, ID: userID} }

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID.String()
}

func (s Scope) IsZero() bool {
	return s.Kind == "" && s.ID == uuid.Nil
}

// Filter selects the events of one table within one scope.
type Filter struct {
	Table Table
	Scope Scope
}

// Topic is the broker channel name for the filter.
func (f Filter) Topic() string {
	return "huddle:feed:" + string(f.Table) + ":" + f.Scope.String()
}

// Event is one row change. Row holds the JSON of the row after the change
// (before it, for deletes).
type Event struct {
	Op    Op              `json:"op"`
	Table Table           `json:"table"`
	Scope string          `json:"scope"`
	RowID int64           `json:"row_id"`
	Row   json.RawMessage `json:"row,omitempty"`
	At    time.Time       `json:"at"`
}

// Decode unmarshals the row payload into v.
func (e Event) Decode(v any) error {
	if len(e.Row) == 0 {
		return fmt.Errorf("event %s %s/%d has no row", e.Op, e.Table, e.RowID)
	}
	if err := json.Unmarshal(e.Row, v); err != nil {
		return fmt.Errorf("decode %s row %d: %w", e.Table, e.RowID, err)
	}
	return nil
}
