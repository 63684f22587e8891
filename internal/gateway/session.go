package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/huddle/internal/conversation"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/timeline"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
)

// Session is one connected view. It owns its subscriptions, seen cache and
// rendered list; nothing in it is shared with other sessions.
type Session struct {
	hub      *Hub
	tenantID uuid.UUID
	user     view.Sender
	logger   *zap.Logger
	registry *realtime.Registry

	ctx    context.Context
	cancel context.CancelFunc
	out    chan ServerFrame
	once   sync.Once

	// switching serializes scope changes.
	switching sync.Mutex

	mu       sync.Mutex
	current  target
	messages *timeline.Timeline[view.Message]
	posts    *timeline.Timeline[view.Post]
	inbox    *conversation.Index
	profiles map[uuid.UUID]view.Sender
}

func newSession(h *Hub, tenantID uuid.UUID, user view.Sender) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		hub:      h,
		tenantID: tenantID,
		user:     user,
		logger:   h.logger.With(zap.String("user_id", user.ID.String())),
		registry: realtime.NewRegistry(h.opts.Feed),
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan ServerFrame, h.opts.SendBuffer),
		profiles: make(map[uuid.UUID]view.Sender),
	}
}

// Frames is the queue the write pump drains.
func (s *Session) Frames() <-chan ServerFrame { return s.out }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Close tears down the open scope and leaves the hub. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.switching.Lock()
		s.closeScope()
		s.switching.Unlock()
		s.registry.CloseAll()
		s.hub.unregister(s)
	})
}

// Handle processes one client frame. Failures are reported to the client
// as error frames.
func (s *Session) Handle(f ClientFrame) {
	switch f.Type {
	case FrameOpen:
		t, err := resolve(f, s.user.ID)
		if err == nil {
			err = s.Open(t)
		}
		if err != nil {
			s.fail(f.Ref, err)
		}
	case FrameSend:
		s.send(f)
	case FrameClose:
		s.switching.Lock()
		s.closeScope()
		s.switching.Unlock()
	default:
		s.fail(f.Ref, errors.New("unknown frame type"))
	}
}

// Open switches the session to t. Subscriptions are opened before the
// snapshot is fetched, so no change made in between is lost. Reopening
// the current scope only resends the snapshot.
func (s *Session) Open(t target) error {
	if err := s.authorize(t); err != nil {
		return err
	}

	s.switching.Lock()
	defer s.switching.Unlock()

	s.mu.Lock()
	same := s.current.scope == t.scope
	s.mu.Unlock()
	if same {
		s.refetch(t.scope)
		return nil
	}

	s.closeScope()

	entry, _, err := s.registry.Open(s.ctx, t.scope, s.bindings(t.scope))
	if err != nil {
		s.logger.Error("open scope", zap.String("scope", t.scope.String()), zap.Error(err))
		return errors.New("failed to subscribe")
	}

	s.mu.Lock()
	s.current = t
	switch t.scope.Kind {
	case realtime.ScopeChannel, realtime.ScopeDirect:
		s.messages = timeline.New[view.Message](entry.Seen)
	case realtime.ScopePosts:
		s.posts = timeline.New[view.Post](entry.Seen)
	case realtime.ScopeInbox:
		s.inbox = conversation.NewIndex(s.user.ID)
	}
	s.mu.Unlock()

	s.refetch(t.scope)
	return nil
}

// closeScope drops the current view. The registry resets its seen cache.
// Must be called with switching held and mu not held.
func (s *Session) closeScope() {
	s.mu.Lock()
	prev := s.current.scope
	s.current = target{}
	s.messages = nil
	s.posts = nil
	s.inbox = nil
	s.mu.Unlock()

	if !prev.IsZero() {
		s.registry.Close(prev)
	}
}

// authorize checks channel membership, or that a direct counterpart is a
// user of the session's tenant.
func (s *Session) authorize(t target) error {
	if t.counterpart != uuid.Nil {
		return s.checkCounterpart(t.counterpart)
	}
	if t.channelID == uuid.Nil {
		return nil
	}
	ok, err := s.hub.opts.Members.IsMember(s.ctx, t.channelID, s.user.ID)
	if err != nil {
		s.logger.Error("membership check", zap.String("channel_id", t.channelID.String()), zap.Error(err))
		return errors.New("failed to check membership")
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *Session) checkCounterpart(id uuid.UUID) error {
	user, err := s.hub.opts.Users.GetByID(s.ctx, s.tenantID, id)
	if err != nil {
		s.logger.Error("counterpart lookup", zap.String("counterpart_id", id.String()), zap.Error(err))
		return errors.New("failed to get user")
	}
	if user == nil {
		return ErrUserNotFound
	}
	return nil
}

func (s *Session) bindings(scope realtime.Scope) []realtime.Binding {
	reconnect := []realtime.Option{realtime.WithReconnect(func(context.Context) { s.refetch(scope) })}

	switch scope.Kind {
	case realtime.ScopeChannel, realtime.ScopeDirect:
		return []realtime.Binding{
			{Table: realtime.TableMessages, Handler: s.onMessage(scope), Options: reconnect},
			{Table: realtime.TableReactions, Handler: s.onMessageReaction(scope), Options: reconnect},
		}
	case realtime.ScopePosts:
		h := s.onPostsChange(scope)
		return []realtime.Binding{
			{Table: realtime.TablePosts, Handler: h, Options: reconnect},
			{Table: realtime.TableComments, Handler: h, Options: reconnect},
			{Table: realtime.TableReactions, Handler: h, Options: reconnect},
		}
	case realtime.ScopeInbox:
		return []realtime.Binding{
			{Table: realtime.TableMessages, Handler: s.onInboxMessage(scope), Options: reconnect},
		}
	}
	return nil
}

func (s *Session) refetch(scope realtime.Scope) {
	switch scope.Kind {
	case realtime.ScopeChannel, realtime.ScopeDirect:
		s.refetchMessages(scope)
	case realtime.ScopePosts:
		s.refetchPosts(scope)
	case realtime.ScopeInbox:
		s.refetchInbox(scope)
	}
}

func (s *Session) refetchMessages(scope realtime.Scope) {
	s.mu.Lock()
	tl := s.messages
	if s.current.scope != scope || tl == nil {
		s.mu.Unlock()
		return
	}
	gen := tl.BeginRefetch()
	s.mu.Unlock()

	rows, err := s.hub.opts.Messages.ListByScope(s.ctx, scope.ID, 0, s.hub.opts.HistoryLimit)
	if err != nil {
		s.loadFailed(scope, "messages", err)
		return
	}
	views := s.hub.opts.Assembler.Messages(s.ctx, rows, s.user.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.scope != scope || s.messages != tl {
		return
	}
	s.messages.Reconcile(gen, views)
	s.push(ServerFrame{Type: FrameSnapshot, Scope: scope.String(), Items: s.messages.Items()})
}

func (s *Session) refetchPosts(scope realtime.Scope) {
	s.mu.Lock()
	tl := s.posts
	if s.current.scope != scope || tl == nil {
		s.mu.Unlock()
		return
	}
	gen := tl.BeginRefetch()
	s.mu.Unlock()

	rows, err := s.hub.opts.Posts.ListByChannel(s.ctx, scope.ID, s.hub.opts.HistoryLimit)
	if err != nil {
		s.loadFailed(scope, "posts", err)
		return
	}
	views := s.hub.opts.Assembler.Posts(s.ctx, rows, s.user.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.scope != scope || s.posts != tl {
		return
	}
	s.posts.Reconcile(gen, views)
	s.push(ServerFrame{Type: FrameSnapshot, Scope: scope.String(), Items: s.posts.Items()})
}

func (s *Session) refetchInbox(scope realtime.Scope) {
	rows, err := s.hub.opts.Messages.ListDirectForUser(s.ctx, s.user.ID)
	if err != nil {
		s.loadFailed(scope, "conversations", err)
		return
	}

	s.mu.Lock()
	if s.current.scope != scope || s.inbox == nil {
		s.mu.Unlock()
		return
	}
	s.inbox.Reset(rows)
	s.mu.Unlock()

	s.publishInbox(scope)
}

func (s *Session) loadFailed(scope realtime.Scope, what string, err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Error("load "+what, zap.String("scope", scope.String()), zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.scope == scope {
		s.push(ServerFrame{Type: FrameError, Scope: scope.String(), Error: "failed to load " + what})
	}
}

func (s *Session) onMessage(scope realtime.Scope) realtime.Handler {
	return func(ctx context.Context, ev realtime.Event) {
		switch ev.Op {
		case realtime.OpDelete:
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.current.scope == scope && s.messages != nil && s.messages.Remove(ev.RowID) {
				s.push(ServerFrame{Type: FrameRemove, Scope: scope.String(), ID: ev.RowID})
			}
			return
		case realtime.OpInsert, realtime.OpUpdate:
		default:
			return
		}

		var row models.Message
		if err := ev.Decode(&row); err != nil {
			s.logger.Warn("bad message event", zap.Error(err))
			return
		}
		// Skip hydration for our own echo.
		if ev.Op == realtime.OpInsert && s.isSeen(scope, row.ID) {
			s.suppressed(ev.Table)
			return
		}
		v := s.hub.opts.Assembler.Message(ctx, row, s.user.ID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.current.scope != scope || s.messages == nil {
			return
		}
		var changed bool
		if ev.Op == realtime.OpInsert {
			changed = s.messages.Insert(v)
			if !changed {
				s.suppressed(ev.Table)
			}
		} else {
			changed = s.messages.Update(v)
		}
		if changed {
			s.pushUpsert(scope, v, s.messages.IndexOf(v.ID))
		}
	}
}

// onMessageReaction refreshes the like count of a listed message.
func (s *Session) onMessageReaction(scope realtime.Scope) realtime.Handler {
	return func(ctx context.Context, ev realtime.Event) {
		var r models.Reaction
		if err := ev.Decode(&r); err != nil || r.TargetKind != models.OwnerMessage {
			return
		}

		s.mu.Lock()
		listed := false
		if s.current.scope == scope && s.messages != nil {
			_, listed = s.messages.Get(r.TargetID)
		}
		s.mu.Unlock()
		if !listed {
			return
		}

		row, err := s.hub.opts.Messages.GetByID(ctx, r.TargetID)
		if err != nil || row == nil {
			return
		}
		v := s.hub.opts.Assembler.Message(ctx, *row, s.user.ID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.current.scope == scope && s.messages != nil && s.messages.Update(v) {
			s.pushUpsert(scope, v, s.messages.IndexOf(v.ID))
		}
	}
}

// onPostsChange refetches the whole board on any change, except for the
// echo of a post this session already shows.
func (s *Session) onPostsChange(scope realtime.Scope) realtime.Handler {
	return func(ctx context.Context, ev realtime.Event) {
		if ev.Table == realtime.TablePosts && ev.Op == realtime.OpInsert && s.isSeen(scope, ev.RowID) {
			s.suppressed(ev.Table)
			return
		}
		s.refetchPosts(scope)
	}
}

func (s *Session) onInboxMessage(scope realtime.Scope) realtime.Handler {
	return func(ctx context.Context, ev realtime.Event) {
		var row models.Message
		if err := ev.Decode(&row); err != nil {
			s.logger.Warn("bad inbox event", zap.Error(err))
			return
		}

		s.mu.Lock()
		if s.current.scope != scope || s.inbox == nil {
			s.mu.Unlock()
			return
		}
		var changed, refold bool
		switch ev.Op {
		case realtime.OpInsert:
			changed = s.inbox.Insert(row)
		case realtime.OpUpdate:
			changed = s.inbox.Update(row)
		case realtime.OpDelete:
			changed, refold = s.inbox.Delete(row.ID)
		}
		s.mu.Unlock()

		switch {
		case refold:
			s.refetchInbox(scope)
		case changed:
			s.publishInbox(scope)
		}
	}
}

// publishInbox sends the conversation list, loading profiles of
// counterparts the session has not seen yet.
func (s *Session) publishInbox(scope realtime.Scope) {
	s.mu.Lock()
	if s.current.scope != scope || s.inbox == nil {
		s.mu.Unlock()
		return
	}
	var missing []uuid.UUID
	for _, id := range conversation.Counterparts(s.inbox.List()) {
		if _, ok := s.profiles[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.Unlock()

	var loaded map[uuid.UUID]view.Sender
	if len(missing) > 0 {
		loaded = s.hub.opts.Assembler.Senders(s.ctx, missing)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range loaded {
		s.profiles[id] = p
	}
	if s.current.scope != scope || s.inbox == nil {
		return
	}
	rows := conversation.WithProfiles(s.inbox.List(), s.profiles)
	s.push(ServerFrame{Type: FrameConversations, Scope: scope.String(), Items: rows})
}

// appendLocal shows the session user's own write. The id is marked seen
// so the echo from the feed is dropped.
func (s *Session) appendLocal(scope realtime.Scope, entry view.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.scope != scope {
		return
	}
	switch e := entry.(type) {
	case view.Message:
		if s.messages != nil {
			s.messages.Upsert(e)
			s.pushUpsert(scope, e, s.messages.IndexOf(e.ID))
		}
	case view.Post:
		if s.posts != nil {
			s.posts.Upsert(e)
			s.pushUpsert(scope, e, s.posts.IndexOf(e.ID))
		}
	}
}

func (s *Session) send(f ClientFrame) {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()

	var tgt send.Target
	switch t.scope.Kind {
	case "":
		s.fail(f.Ref, ErrNoScope)
		return
	case realtime.ScopeChannel, realtime.ScopePosts:
		if err := s.authorize(t); err != nil {
			s.fail(f.Ref, err)
			return
		}
		if t.scope.Kind == realtime.ScopeChannel {
			tgt = send.ChannelMessage(s.hub.opts.Messages, s.hub.opts.Emitter, t.channelID)
		} else {
			tgt = send.ChannelPost(s.hub.opts.Posts, s.hub.opts.Emitter, t.channelID)
		}
	case realtime.ScopeDirect:
		if err := s.authorize(t); err != nil {
			s.fail(f.Ref, err)
			return
		}
		tgt = send.DirectMessage(s.hub.opts.Messages, s.hub.opts.Emitter, s.user.ID, t.counterpart)
	default:
		s.fail(f.Ref, ErrReadOnly)
		return
	}

	// The send outlives a scope change and the session itself; its local
	// append is then a no-op. Hub.Shutdown waits for it.
	if !s.hub.beginSend() {
		s.fail(f.Ref, ErrShuttingDown)
		return
	}
	go func() {
		defer s.hub.sends.Done()
		res, err := s.hub.opts.Pipeline.Send(s.ctx, tgt, send.Request{Sender: s.user, Content: f.Content})
		if err != nil {
			s.fail(f.Ref, err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.push(ServerFrame{
			Type:       FrameSent,
			Scope:      tgt.Scope().String(),
			Ref:        f.Ref,
			Item:       res.Entry,
			FileErrors: FileErrors(res.FileErrors),
		})
	}()
}

func (s *Session) isSeen(scope realtime.Scope, id int64) bool {
	entry, ok := s.registry.Get(scope)
	return ok && entry.Seen.IsSeen(id)
}

func (s *Session) suppressed(table realtime.Table) {
	if s.hub.opts.Metrics != nil {
		s.hub.opts.Metrics.EchoesSuppressed.WithLabelValues(string(table)).Inc()
	}
}

func (s *Session) pushUpsert(scope realtime.Scope, item view.Entry, index int) {
	s.push(ServerFrame{Type: FrameUpsert, Scope: scope.String(), Item: item, Index: &index})
}

// fail reports err to the client. Store errors are replaced by a generic
// message.
func (s *Session) fail(ref string, err error) {
	msg := err.Error()
	if errors.Is(err, send.ErrWriteFailed) {
		msg = send.ErrWriteFailed.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push(ServerFrame{Type: FrameError, Ref: ref, Error: msg})
}

// push queues f without blocking. A session that cannot keep up is
// closed; the client reconnects and gets a fresh snapshot.
func (s *Session) push(f ServerFrame) {
	select {
	case s.out <- f:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("session too slow, dropping", zap.String("frame", f.Type))
		s.cancel()
	}
}

func (s *Session) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f ClientFrame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("websocket closed", zap.Error(err))
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		s.Handle(f)
	}
}

func (s *Session) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case f := <-s.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
