package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/view"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// Unset function fields return zero values.

type fakeUsers struct {
	create     func(ctx context.Context, tenantID uuid.UUID, email, displayName, hash string) (*models.User, error)
	getByID    func(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error)
	getByEmail func(ctx context.Context, email string) (*models.User, error)
}

func (f *fakeUsers) Create(ctx context.Context, tenantID uuid.UUID, email, displayName, hash string) (*models.User, error) {
	if f.create == nil {
		return nil, nil
	}
	return f.create(ctx, tenantID, email, displayName, hash)
}

func (f *fakeUsers) GetByID(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	if f.getByID == nil {
		return nil, nil
	}
	return f.getByID(ctx, tenantID, userID)
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getByEmail == nil {
		return nil, nil
	}
	return f.getByEmail(ctx, email)
}

func (f *fakeUsers) ListByIDs(context.Context, []uuid.UUID) ([]models.User, error) {
	return []models.User{}, nil
}

type fakeTenants struct {
	create func(ctx context.Context, name string) (*models.Tenant, error)
}

func (f *fakeTenants) Create(ctx context.Context, name string) (*models.Tenant, error) {
	return f.create(ctx, name)
}

type fakeChannels struct {
	create  func(ctx context.Context, tenantID uuid.UUID, name string, isPrivate bool) (*models.Channel, error)
	getByID func(ctx context.Context, tenantID, channelID uuid.UUID) (*models.Channel, error)
}

func (f *fakeChannels) Create(ctx context.Context, tenantID uuid.UUID, name string, isPrivate bool) (*models.Channel, error) {
	return f.create(ctx, tenantID, name, isPrivate)
}

func (f *fakeChannels) GetByID(ctx context.Context, tenantID, channelID uuid.UUID) (*models.Channel, error) {
	if f.getByID == nil {
		return nil, nil
	}
	return f.getByID(ctx, tenantID, channelID)
}

func (f *fakeChannels) ListByTenant(context.Context, uuid.UUID) ([]models.Channel, error) {
	return []models.Channel{}, nil
}

// fakeMembers is an in-memory membership table. Like the store, a
// repeated join keeps the first role.
type fakeMembers struct {
	roles map[uuid.UUID]map[uuid.UUID]string
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{roles: make(map[uuid.UUID]map[uuid.UUID]string)}
}

func (f *fakeMembers) AddMember(_ context.Context, channelID, userID uuid.UUID, role string) error {
	if f.roles[channelID] == nil {
		f.roles[channelID] = make(map[uuid.UUID]string)
	}
	if _, ok := f.roles[channelID][userID]; !ok {
		f.roles[channelID][userID] = role
	}
	return nil
}

func (f *fakeMembers) RemoveMember(_ context.Context, channelID, userID uuid.UUID) error {
	delete(f.roles[channelID], userID)
	return nil
}

func (f *fakeMembers) ListMembers(_ context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	out := []models.ChannelMember{}
	for id, role := range f.roles[channelID] {
		out = append(out, models.ChannelMember{ChannelID: channelID, UserID: id, Role: role})
	}
	return out, nil
}

func (f *fakeMembers) IsMember(_ context.Context, channelID, userID uuid.UUID) (bool, error) {
	_, ok := f.roles[channelID][userID]
	return ok, nil
}

type fakeMessages struct {
	getByID           func(ctx context.Context, id int64) (*models.Message, error)
	listByScope       func(ctx context.Context, scopeID uuid.UUID, before int64, limit int) ([]models.Message, error)
	listDirectForUser func(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
	markRead          func(ctx context.Context, recipientID, senderID uuid.UUID) ([]models.Message, error)
	delete            func(ctx context.Context, id int64, senderID uuid.UUID) (bool, error)
}

func (f *fakeMessages) Create(context.Context, uuid.UUID, uuid.UUID, *uuid.UUID, string) (*models.Message, error) {
	return nil, nil
}

func (f *fakeMessages) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	if f.getByID == nil {
		return nil, nil
	}
	return f.getByID(ctx, id)
}

func (f *fakeMessages) ListByScope(ctx context.Context, scopeID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	if f.listByScope == nil {
		return []models.Message{}, nil
	}
	return f.listByScope(ctx, scopeID, before, limit)
}

func (f *fakeMessages) ListDirectForUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	if f.listDirectForUser == nil {
		return []models.Message{}, nil
	}
	return f.listDirectForUser(ctx, userID)
}

func (f *fakeMessages) SetHasAttachments(context.Context, int64) error { return nil }

func (f *fakeMessages) MarkRead(ctx context.Context, recipientID, senderID uuid.UUID) ([]models.Message, error) {
	if f.markRead == nil {
		return []models.Message{}, nil
	}
	return f.markRead(ctx, recipientID, senderID)
}

func (f *fakeMessages) Delete(ctx context.Context, id int64, senderID uuid.UUID) (bool, error) {
	if f.delete == nil {
		return false, nil
	}
	return f.delete(ctx, id, senderID)
}

type fakePosts struct {
	getByID       func(ctx context.Context, id int64) (*models.Post, error)
	listByChannel func(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Post, error)
}

func (f *fakePosts) Create(context.Context, uuid.UUID, uuid.UUID, string) (*models.Post, error) {
	return nil, nil
}

func (f *fakePosts) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	if f.getByID == nil {
		return nil, nil
	}
	return f.getByID(ctx, id)
}

func (f *fakePosts) ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Post, error) {
	if f.listByChannel == nil {
		return []models.Post{}, nil
	}
	return f.listByChannel(ctx, channelID, limit)
}

func (f *fakePosts) SetHasAttachments(context.Context, int64) error { return nil }

func (f *fakePosts) Delete(context.Context, int64, uuid.UUID) (bool, error) { return false, nil }

type fakeComments struct {
	create func(ctx context.Context, postID int64, authorID uuid.UUID, body string) (*models.Comment, error)
}

func (f *fakeComments) Create(ctx context.Context, postID int64, authorID uuid.UUID, body string) (*models.Comment, error) {
	return f.create(ctx, postID, authorID, body)
}

func (f *fakeComments) ListByPosts(context.Context, []int64) ([]models.Comment, error) {
	return []models.Comment{}, nil
}

// fakeReactions is an in-memory like set.
type fakeReactions struct {
	likes map[string]bool
}

func newFakeReactions() *fakeReactions {
	return &fakeReactions{likes: make(map[string]bool)}
}

func reactionKey(kind models.OwnerKind, id int64, user uuid.UUID) string {
	b, _ := json.Marshal([]any{kind, id, user})
	return string(b)
}

func (f *fakeReactions) Add(_ context.Context, kind models.OwnerKind, id int64, user uuid.UUID) (bool, error) {
	k := reactionKey(kind, id, user)
	if f.likes[k] {
		return false, nil
	}
	f.likes[k] = true
	return true, nil
}

func (f *fakeReactions) Remove(_ context.Context, kind models.OwnerKind, id int64, user uuid.UUID) (bool, error) {
	k := reactionKey(kind, id, user)
	if !f.likes[k] {
		return false, nil
	}
	delete(f.likes, k)
	return true, nil
}

func (f *fakeReactions) ListByTargets(context.Context, models.OwnerKind, []int64) ([]models.Reaction, error) {
	return []models.Reaction{}, nil
}

// fakeSender records what the pipeline was asked to send.
type fakeSender struct {
	send func(ctx context.Context, target send.Target, req send.Request) (*send.Result, error)

	target send.Target
	req    send.Request
	files  map[string]string
}

func (f *fakeSender) Send(ctx context.Context, target send.Target, req send.Request) (*send.Result, error) {
	f.target = target
	f.req = req
	f.files = make(map[string]string)
	for _, file := range req.Files {
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		f.files[file.Name] = string(b)
	}
	if f.send == nil {
		return &send.Result{Entry: view.Message{ID: 1, Content: req.Content}}, nil
	}
	return f.send(ctx, target, req)
}

// fakeHydrator builds bare views with the viewer's id as display name, so
// tests can tell the viewer was passed through.
type fakeHydrator struct{}

func (fakeHydrator) Messages(_ context.Context, rows []models.Message, viewer uuid.UUID) []view.Message {
	out := make([]view.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, view.NewMessage(r, view.Sender{ID: r.SenderID, DisplayName: viewer.String()}))
	}
	return out
}

func (fakeHydrator) Posts(_ context.Context, posts []models.Post, _ uuid.UUID) []view.Post {
	out := make([]view.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, view.NewPost(p, view.Placeholder(p.AuthorID)))
	}
	return out
}

func (fakeHydrator) Senders(_ context.Context, ids []uuid.UUID) map[uuid.UUID]view.Sender {
	out := make(map[uuid.UUID]view.Sender, len(ids))
	for _, id := range ids {
		out[id] = view.Sender{ID: id, DisplayName: "user-" + id.String()[:4]}
	}
	return out
}

// feed captures events published through a real emitter.
type feed struct {
	broker  *realtime.MemoryBroker
	emitter *realtime.Emitter
}

func newFeed(t *testing.T) *feed {
	t.Helper()
	b := realtime.NewMemoryBroker(16)
	t.Cleanup(func() { b.Close() })
	return &feed{broker: b, emitter: realtime.NewEmitter(b, zap.NewNop())}
}

func (f *feed) watch(t *testing.T, table realtime.Table, scope realtime.Scope) realtime.Stream {
	t.Helper()
	s, err := f.broker.Subscribe(context.Background(), realtime.Filter{Table: table, Scope: scope}.Topic())
	require.NoError(t, err)
	return s
}

func nextEvent(t *testing.T, s realtime.Stream) realtime.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return realtime.Event{}
	}
}

func noEvent(t *testing.T, s realtime.Stream) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s %s/%d", ev.Op, ev.Table, ev.RowID)
	default:
	}
}

func newIdentity(name string) auth.Identity {
	return auth.Identity{
		UserID:      uuid.New(),
		TenantID:    uuid.New(),
		Email:       name + "@example.com",
		DisplayName: name,
	}
}

func newRouter(h Handlers) *gin.Engine {
	r := gin.New()
	RegisterRoutes(r, h, testSecret)
	return r
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	as          *auth.Identity
}

func do(t *testing.T, r http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	httpReq := httptest.NewRequest(req.method, req.path, req.body)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.as != nil {
		token, err := auth.GenerateToken(*req.as, testSecret, time.Hour)
		require.NoError(t, err)
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
