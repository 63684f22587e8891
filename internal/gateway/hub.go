// Package gateway serves websocket view sessions. A session shows one
// scope at a time and keeps its rendered list in sync with the change
// feed, the sender's own writes and reconnect refetches.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
)

type MessageStore interface {
	send.MessageWriter
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)
	ListByScope(ctx context.Context, scopeID uuid.UUID, before int64, limit int) ([]models.Message, error)
	ListDirectForUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
}

type PostStore interface {
	send.PostWriter
	ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Post, error)
}

type MembershipChecker interface {
	IsMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (bool, error)
}

// UserLookup resolves direct message counterparts within a tenant.
type UserLookup interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error)
}

// Hydrator turns rows into views. *assembler.Assembler implements it.
type Hydrator interface {
	Messages(ctx context.Context, rows []models.Message, viewer uuid.UUID) []view.Message
	Message(ctx context.Context, row models.Message, viewer uuid.UUID) view.Message
	Posts(ctx context.Context, posts []models.Post, viewer uuid.UUID) []view.Post
	Senders(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]view.Sender
}

type Sender interface {
	Send(ctx context.Context, target send.Target, req send.Request) (*send.Result, error)
}

type Options struct {
	Feed      *realtime.Client
	Assembler Hydrator
	Messages  MessageStore
	Posts     PostStore
	Members   MembershipChecker
	Users     UserLookup
	Pipeline  Sender
	Emitter   *realtime.Emitter
	Logger    *zap.Logger
	Metrics   *observ.Metrics

	// HistoryLimit caps the rows loaded into a chat or posts snapshot.
	HistoryLimit int
	// SendBuffer is the number of frames a session may have queued before
	// it is considered stuck and dropped.
	SendBuffer int
}

// Hub tracks every live session by user. It is the send pipeline's
// LocalSink: a user's own write is shown in all of that user's sessions
// currently looking at the scope it went to.
type Hub struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Session]struct{}
	closed   bool

	// sends counts pipeline sends started by sessions.
	sends sync.WaitGroup
}

func NewHub(opts Options) *Hub {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		opts:     opts,
		logger:   opts.Logger.Named("gateway"),
		sessions: make(map[uuid.UUID]map[*Session]struct{}),
	}
}

// Connect starts a session for user of tenantID. The caller must Close it.
func (h *Hub) Connect(tenantID uuid.UUID, user view.Sender) *Session {
	s := newSession(h, tenantID, user)

	h.mu.Lock()
	if h.sessions[user.ID] == nil {
		h.sessions[user.ID] = make(map[*Session]struct{})
	}
	h.sessions[user.ID][s] = struct{}{}
	h.mu.Unlock()

	if h.opts.Metrics != nil {
		h.opts.Metrics.Sessions.Inc()
	}
	return s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.user.ID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.user.ID)
		}
	}
	h.mu.Unlock()

	if h.opts.Metrics != nil {
		h.opts.Metrics.Sessions.Dec()
	}
}

// AppendLocal implements send.LocalSink.
func (h *Hub) AppendLocal(senderID uuid.UUID, scope realtime.Scope, entry view.Entry) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[senderID]))
	for s := range h.sessions[senderID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.appendLocal(scope, entry)
	}
}

// SessionCount is the number of live sessions of user.
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

func (h *Hub) beginSend() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}
	h.sends.Add(1)
	return true
}

// Shutdown closes every session, refuses new sends and waits for sends
// already in flight until ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	var all []*Session
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.sends.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 64 << 10
)

// Serve runs a session over conn until either side goes away.
func (h *Hub) Serve(conn *websocket.Conn, tenantID uuid.UUID, user view.Sender) {
	s := h.Connect(tenantID, user)
	defer s.Close()

	go s.writePump(conn)
	s.readPump(conn)
}
