package gateway

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/send"
)

// Client frame types.
const (
	FrameOpen  = "open"
	FrameSend  = "send"
	FrameClose = "close"
)

// Server frame types.
const (
	FrameSnapshot      = "snapshot"
	FrameUpsert        = "upsert"
	FrameRemove        = "remove"
	FrameConversations = "conversations"
	FrameSent          = "sent"
	FrameError         = "error"
)

// ClientFrame is what the browser sends. For "open", ID is the channel id
// for channel and posts scopes and the other user's id for dm; inbox
// ignores it.
type ClientFrame struct {
	Type    string             `json:"type"`
	Scope   realtime.ScopeKind `json:"scope,omitempty"`
	ID      string             `json:"id,omitempty"`
	Content string             `json:"content,omitempty"`
	// Ref is echoed back on the sent or error frame it caused.
	Ref string `json:"ref,omitempty"`
}

type ServerFrame struct {
	Type  string `json:"type"`
	Scope string `json:"scope,omitempty"`
	Ref   string `json:"ref,omitempty"`

	Items any   `json:"items,omitempty"`
	Item  any   `json:"item,omitempty"`
	Index *int  `json:"index,omitempty"`
	ID    int64 `json:"id,omitempty"`

	FileErrors []FileErrorBody `json:"file_errors,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type FileErrorBody struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// FileErrors converts pipeline file errors to their wire shape.
func FileErrors(errs []send.FileError) []FileErrorBody {
	if len(errs) == 0 {
		return nil
	}
	out := make([]FileErrorBody, 0, len(errs))
	for _, e := range errs {
		out = append(out, FileErrorBody{FileName: e.Name, Error: e.Err.Error()})
	}
	return out
}

var (
	ErrUnknownScope = errors.New("unknown scope")
	ErrForbidden    = errors.New("not a member of this channel")
	ErrNoScope      = errors.New("no scope is open")
	ErrReadOnly     = errors.New("cannot send to this scope")
	ErrUserNotFound = errors.New("user not found")
	ErrShuttingDown = errors.New("server is shutting down")
)

// target is an open request resolved against the session's user.
type target struct {
	scope       realtime.Scope
	channelID   uuid.UUID
	counterpart uuid.UUID
}

func resolve(f ClientFrame, me uuid.UUID) (target, error) {
	if f.Scope == realtime.ScopeInbox {
		return target{scope: realtime.InboxScope(me)}, nil
	}

	id, err := uuid.Parse(f.ID)
	if err != nil {
		return target{}, fmt.Errorf("invalid id %q", f.ID)
	}
	switch f.Scope {
	case realtime.ScopeChannel:
		return target{scope: realtime.ChannelScope(id), channelID: id}, nil
	case realtime.ScopePosts:
		return target{scope: realtime.PostsScope(id), channelID: id}, nil
	case realtime.ScopeDirect:
		return target{scope: realtime.DirectScope(models.DirectScopeID(me, id)), counterpart: id}, nil
	}
	return target{}, fmt.Errorf("%w %q", ErrUnknownScope, f.Scope)
}
