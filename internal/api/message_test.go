package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type messageEnv struct {
	router   http.Handler
	messages *fakeMessages
	members  *fakeMembers
	sender   *fakeSender
	feed     *feed
	channel  uuid.UUID
	alice    auth.Identity
	bob      auth.Identity
}

func newMessageEnv(t *testing.T, maxUpload int64) *messageEnv {
	e := &messageEnv{
		messages: &fakeMessages{},
		members:  newFakeMembers(),
		sender:   &fakeSender{},
		feed:     newFeed(t),
		channel:  uuid.New(),
		alice:    newIdentity("alice"),
		bob:      newIdentity("bob"),
	}
	require.NoError(t, e.members.AddMember(context.Background(), e.channel, e.alice.UserID, RoleMember))
	e.router = newRouter(Handlers{
		Messages: NewMessageHandler(e.messages, e.members, e.sender, fakeHydrator{}, e.feed.emitter, maxUpload, zap.NewNop()),
	})
	return e
}

func (e *messageEnv) path() string {
	return "/v1/channels/" + e.channel.String() + "/messages"
}

func multipartBody(t *testing.T, content string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("content", content))
	for name, body := range files {
		fw, err := mw.CreateFormFile(formFiles, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateMessage_JSON(t *testing.T) {
	e := newMessageEnv(t, 1<<20)

	w := do(t, e.router, request{
		method:      http.MethodPost,
		path:        e.path(),
		body:        jsonBody(t, map[string]string{"content": "hello"}),
		contentType: "application/json",
		as:          &e.alice,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, "hello", e.sender.req.Content)
	assert.Equal(t, e.alice.UserID, e.sender.req.Sender.ID)
	assert.Equal(t, "alice", e.sender.req.Sender.DisplayName)
	assert.Equal(t, realtime.ChannelScope(e.channel), e.sender.target.Scope())
	assert.Contains(t, w.Body.String(), `"file_errors":[]`)
}

func TestCreateMessage_Multipart(t *testing.T) {
	e := newMessageEnv(t, 1<<20)
	body, ct := multipartBody(t, "see attached", map[string]string{"notes.txt": "line one"})

	w := do(t, e.router, request{method: http.MethodPost, path: e.path(), body: body, contentType: ct, as: &e.alice})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, "see attached", e.sender.req.Content)
	assert.Equal(t, map[string]string{"notes.txt": "line one"}, e.sender.files)
}

func TestCreateMessage_UploadTooLarge(t *testing.T) {
	e := newMessageEnv(t, 64)
	body, ct := multipartBody(t, "", map[string]string{"big.bin": strings.Repeat("x", 4096)})

	w := do(t, e.router, request{method: http.MethodPost, path: e.path(), body: body, contentType: ct, as: &e.alice})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, e.sender.target)
}

func TestCreateMessage_RequiresMembership(t *testing.T) {
	e := newMessageEnv(t, 1<<20)

	w := do(t, e.router, request{
		method:      http.MethodPost,
		path:        e.path(),
		body:        jsonBody(t, map[string]string{"content": "hi"}),
		contentType: "application/json",
		as:          &e.bob,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, e.sender.target)
}

func TestCreateMessage_PipelineOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result *send.Result
		err    error
		status int
		body   string
	}{
		{
			name:   "empty",
			err:    send.ErrEmptyMessage,
			status: http.StatusBadRequest,
			body:   send.ErrEmptyMessage.Error(),
		},
		{
			name:   "every file lost",
			result: &send.Result{FileErrors: []send.FileError{{Name: "a.png", Err: errors.New("upload failed")}}},
			err:    send.ErrNothingStored,
			status: http.StatusUnprocessableEntity,
			body:   `"file_name":"a.png"`,
		},
		{
			name:   "partial",
			result: &send.Result{Entry: view.Message{ID: 7}, FileErrors: []send.FileError{{Name: "b.pdf", Err: errors.New("boom")}}},
			status: http.StatusCreated,
			body:   `"error":"boom"`,
		},
		{
			name:   "insert failed",
			err:    errors.Join(send.ErrWriteFailed, errors.New("pq: connection refused")),
			status: http.StatusInternalServerError,
			body:   `"failed to send message"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newMessageEnv(t, 1<<20)
			e.sender.send = func(context.Context, send.Target, send.Request) (*send.Result, error) {
				return tt.result, tt.err
			}

			w := do(t, e.router, request{
				method:      http.MethodPost,
				path:        e.path(),
				body:        jsonBody(t, map[string]string{"content": "x"}),
				contentType: "application/json",
				as:          &e.alice,
			})
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestListMessages(t *testing.T) {
	e := newMessageEnv(t, 1<<20)
	var gotBefore int64
	var gotLimit int
	e.messages.listByScope = func(_ context.Context, scopeID uuid.UUID, before int64, limit int) ([]models.Message, error) {
		gotBefore, gotLimit = before, limit
		return []models.Message{{ID: 9, ScopeID: scopeID, SenderID: e.alice.UserID, Body: "hi", CreatedAt: time.Now()}}, nil
	}

	w := do(t, e.router, request{method: http.MethodGet, path: e.path() + "?before=42&limit=500", as: &e.alice})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), gotBefore)
	assert.Equal(t, maxPageSize, gotLimit)

	var got []view.Message
	decode(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, e.alice.UserID.String(), got[0].Sender.DisplayName)

	w = do(t, e.router, request{method: http.MethodGet, path: e.path() + "?before=abc", as: &e.alice})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, e.router, request{method: http.MethodGet, path: e.path(), as: &e.bob})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteMessage_ChannelPublishesDelete(t *testing.T) {
	e := newMessageEnv(t, 1<<20)
	row := &models.Message{ID: 5, ScopeID: e.channel, SenderID: e.alice.UserID, Body: "oops"}
	e.messages.getByID = func(context.Context, int64) (*models.Message, error) { return row, nil }
	e.messages.delete = func(_ context.Context, id int64, senderID uuid.UUID) (bool, error) {
		return id == row.ID && senderID == row.SenderID, nil
	}
	stream := e.feed.watch(t, realtime.TableMessages, realtime.ChannelScope(e.channel))

	w := do(t, e.router, request{method: http.MethodDelete, path: "/v1/messages/5", as: &e.bob})
	assert.Equal(t, http.StatusForbidden, w.Code)
	noEvent(t, stream)

	w = do(t, e.router, request{method: http.MethodDelete, path: "/v1/messages/5", as: &e.alice})
	require.Equal(t, http.StatusNoContent, w.Code)

	ev := nextEvent(t, stream)
	assert.Equal(t, realtime.OpDelete, ev.Op)
	assert.Equal(t, int64(5), ev.RowID)
}

func TestDeleteMessage_DirectReachesBothInboxes(t *testing.T) {
	e := newMessageEnv(t, 1<<20)
	bob := e.bob.UserID
	row := &models.Message{ID: 6, ScopeID: models.DirectScopeID(e.alice.UserID, bob), SenderID: e.alice.UserID, RecipientID: &bob}
	e.messages.getByID = func(context.Context, int64) (*models.Message, error) { return row, nil }
	e.messages.delete = func(context.Context, int64, uuid.UUID) (bool, error) { return true, nil }

	streams := []realtime.Stream{
		e.feed.watch(t, realtime.TableMessages, realtime.DirectScope(row.ScopeID)),
		e.feed.watch(t, realtime.TableMessages, realtime.InboxScope(e.alice.UserID)),
		e.feed.watch(t, realtime.TableMessages, realtime.InboxScope(bob)),
	}

	w := do(t, e.router, request{method: http.MethodDelete, path: "/v1/messages/6", as: &e.alice})
	require.Equal(t, http.StatusNoContent, w.Code)
	for _, s := range streams {
		assert.Equal(t, realtime.OpDelete, nextEvent(t, s).Op)
	}
}

func TestDeleteMessage_NotFound(t *testing.T) {
	e := newMessageEnv(t, 1<<20)

	w := do(t, e.router, request{method: http.MethodDelete, path: "/v1/messages/404", as: &e.alice})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, e.router, request{method: http.MethodDelete, path: "/v1/messages/nope", as: &e.alice})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
