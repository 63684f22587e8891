package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/gateway"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/send"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100

	// formFiles is the multipart field that carries attachments.
	formFiles = "files"
)

// Sender runs the send pipeline. *send.Pipeline implements it.
type Sender interface {
	Send(ctx context.Context, target send.Target, req send.Request) (*send.Result, error)
}

var errUploadTooLarge = errors.New("upload too large")

type sendBody struct {
	Content string `json:"content"`
}

// sentResponse is returned by every endpoint that creates a message or a
// post. The write succeeded even when FileErrors is not empty.
type sentResponse struct {
	Item       any                     `json:"item"`
	FileErrors []gateway.FileErrorBody `json:"file_errors"`
}

// fileErrors is never nil so clients always get a list.
func fileErrors(errs []send.FileError) []gateway.FileErrorBody {
	if out := gateway.FileErrors(errs); out != nil {
		return out
	}
	return []gateway.FileErrorBody{}
}

// readSendRequest accepts either a JSON body {"content": "..."} or a
// multipart form with a content field and any number of files. The whole
// body is capped at maxBytes.
func readSendRequest(c *gin.Context, maxBytes int64) (string, []send.File, error) {
	if maxBytes > 0 {
		if c.Request.ContentLength > maxBytes {
			return "", nil, errUploadTooLarge
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var body sendBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return "", nil, err
		}
		return body.Content, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, err
	}
	content := ""
	if v := form.Value["content"]; len(v) > 0 {
		content = v[0]
	}
	headers := form.File[formFiles]
	files := make([]send.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadedFile(fh))
	}
	return content, files, nil
}

func uploadedFile(fh *multipart.FileHeader) send.File {
	return send.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// rejectSendRequest answers a body readSendRequest could not parse.
func rejectSendRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.Is(err, errUploadTooLarge) || errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errUploadTooLarge.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondSent maps a pipeline outcome onto the HTTP response.
func respondSent(c *gin.Context, logger *zap.Logger, res *send.Result, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, sentResponse{Item: res.Entry, FileErrors: fileErrors(res.FileErrors)})
	case errors.Is(err, send.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, send.ErrNothingStored):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       err.Error(),
			"file_errors": fileErrors(res.FileErrors),
		})
	default:
		logger.Error("send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": send.ErrWriteFailed.Error()})
	}
}

// page reads the before/limit cursor. before=0 starts from the latest.
func page(c *gin.Context) (before int64, limit int, ok bool) {
	var err error
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return 0, 0, false
		}
	}

	limit = defaultPageSize
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return 0, 0, false
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	return before, limit, true
}

func pathUUID(c *gin.Context, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what})
		return uuid.Nil, false
	}
	return id, true
}

func pathInt64(c *gin.Context, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what})
		return 0, false
	}
	return id, true
}

// requireMember writes 403 (or 500) and returns false unless userID is a
// member of the channel.
func requireMember(c *gin.Context, members repository.MembershipRepository, logger *zap.Logger, channelID, userID uuid.UUID) bool {
	ok, err := members.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		logger.Error("failed to check membership", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this channel"})
		return false
	}
	return true
}

// messageScopes lists every scope a change to m is published to: the
// channel, or the conversation plus both participants' inboxes.
func messageScopes(m models.Message) []realtime.Scope {
	if !m.IsDirect() {
		return []realtime.Scope{realtime.ChannelScope(m.ScopeID)}
	}
	scopes := []realtime.Scope{realtime.DirectScope(m.ScopeID), realtime.InboxScope(m.SenderID)}
	if *m.RecipientID != m.SenderID {
		scopes = append(scopes, realtime.InboxScope(*m.RecipientID))
	}
	return scopes
}

// chatScope is the one scope whose view renders m.
func chatScope(m models.Message) realtime.Scope {
	if m.IsDirect() {
		return realtime.DirectScope(m.ScopeID)
	}
	return realtime.ChannelScope(m.ScopeID)
}
