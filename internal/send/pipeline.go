// Package send persists a new message or post with its attachments and
// shows the result to the sender right away, without waiting for the
// change feed to echo it back.
package send

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/storage"
	"github.com/lalith-99/huddle/internal/view"
	"go.uber.org/zap"
)

var (
	// ErrEmptyMessage is returned before any I/O when there is neither
	// text nor a file to send.
	ErrEmptyMessage = errors.New("message has no content and no attachments")

	// ErrWriteFailed wraps the store error that aborted a send.
	ErrWriteFailed = errors.New("failed to send message")

	// ErrNothingStored means an attachment-only send lost every file. The
	// row is removed again so no empty message is left behind.
	ErrNothingStored = errors.New("no attachment could be stored")
)

type AttachmentWriter interface {
	Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// LocalSink receives the sender's own entry as soon as the write is
// done. It must mark the id seen wherever it renders it, so the later
// feed echo is suppressed.
type LocalSink interface {
	AppendLocal(senderID uuid.UUID, scope realtime.Scope, entry view.Entry)
}

// File is one upload. Open may be called more than once.
type File struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

type Request struct {
	Sender  view.Sender
	Content string
	Files   []File
}

// FileError reports one attachment that did not make it. The message
// itself was still sent.
type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

type Result struct {
	Entry       view.Entry
	Attachments []models.Attachment
	FileErrors  []FileError
}

type Pipeline struct {
	attachments AttachmentWriter
	store       ObjectStore
	logger      *zap.Logger
	metrics     *observ.Metrics
	timeout     time.Duration

	sink    LocalSink
	now     func() time.Time
	retries uint64
	backoff func() backoff.BackOff
}

func NewPipeline(attachments AttachmentWriter, store ObjectStore, logger *zap.Logger, metrics *observ.Metrics, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Pipeline{
		attachments: attachments,
		store:       store,
		logger:      logger.Named("send"),
		metrics:     metrics,
		timeout:     timeout,
		now:         time.Now,
		retries:     2,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = timeout
			return b
		},
	}
}

// SetLocalSink wires the local append. Must be called before the first
// Send; without a sink the local append is skipped.
func (p *Pipeline) SetLocalSink(sink LocalSink) {
	p.sink = sink
}

// Send runs validate, insert, upload each file, flag, local append and
// announce, in that order.
//
// Sends are not cancelled with the caller: every step runs on a context
// detached from ctx and bounded by the pipeline timeout. Only the insert
// can fail the send; file failures come back in Result.FileErrors.
func (p *Pipeline) Send(ctx context.Context, target Target, req Request) (*Result, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Files) == 0 {
		p.outcome("rejected")
		return nil, ErrEmptyMessage
	}

	base := context.WithoutCancel(ctx)

	stepCtx, cancel := context.WithTimeout(base, p.timeout)
	id, err := target.Insert(stepCtx, req.Sender.ID, content)
	cancel()
	if err != nil {
		p.outcome("failed")
		p.logger.Error("insert failed",
			zap.String("scope", target.Scope().String()),
			zap.String("sender_id", req.Sender.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	res := &Result{Attachments: []models.Attachment{}}
	for i, f := range req.Files {
		att, err := p.attach(base, target, id, i, f)
		if err != nil {
			res.FileErrors = append(res.FileErrors, FileError{Name: f.Name, Err: err})
			if p.metrics != nil {
				p.metrics.AttachmentFailures.Inc()
			}
			p.logger.Warn("attachment failed",
				zap.Int64("owner_id", id),
				zap.String("file", f.Name),
				zap.Error(err),
			)
			continue
		}
		res.Attachments = append(res.Attachments, *att)
	}

	if len(req.Files) > 0 && len(res.Attachments) == 0 && content == "" {
		stepCtx, cancel := context.WithTimeout(base, p.timeout)
		if err := target.Discard(stepCtx); err != nil {
			p.logger.Error("discard empty row", zap.Int64("owner_id", id), zap.Error(err))
		}
		cancel()
		p.outcome("failed")
		return res, ErrNothingStored
	}

	if len(res.Attachments) > 0 {
		if err := p.flag(base, target, id); err != nil {
			// The attachment rows exist; readers that trust the flag will
			// miss them until it is set.
			p.logger.Error("flag attachments", zap.Int64("owner_id", id), zap.Error(err))
		}
	}

	res.Entry = target.Entry(req.Sender, res.Attachments)
	if p.sink != nil {
		p.sink.AppendLocal(req.Sender.ID, target.Scope(), res.Entry)
	}

	stepCtx, cancel = context.WithTimeout(base, p.timeout)
	target.Announce(stepCtx)
	cancel()

	if len(res.FileErrors) > 0 {
		p.outcome("partial")
	} else {
		p.outcome("ok")
	}
	return res, nil
}

func (p *Pipeline) attach(base context.Context, target Target, ownerID int64, index int, f File) (*models.Attachment, error) {
	data, err := readAll(f)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	name := fileName(f.Name, p.now(), index)
	key := fmt.Sprintf("%s/%d/%s", target.StoragePrefix(), ownerID, name)
	contentType := detectContentType(data, f.ContentType)

	upload := func() error {
		stepCtx, cancel := context.WithTimeout(base, p.timeout)
		defer cancel()
		err := p.store.Upload(stepCtx, key, bytes.NewReader(data), int64(len(data)), contentType)
		if errors.Is(err, storage.ErrStorageDisabled) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithMaxRetries(p.backoff(), p.retries)
	notify := func(err error, wait time.Duration) {
		p.logger.Debug("upload retry", zap.String("key", key), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(upload, policy, notify); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	stepCtx, cancel := context.WithTimeout(base, p.timeout)
	defer cancel()
	att, err := p.attachments.Create(stepCtx, &models.Attachment{
		ID:        uuid.New(),
		OwnerKind: target.OwnerKind(),
		OwnerID:   ownerID,
		FileName:  name,
		MimeType:  contentType,
		SizeBytes: int64(len(data)),
		URL:       p.store.PublicURL(key),
	})
	if err != nil {
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	return att, nil
}

// flag sets the row's attachment flag, retried like uploads.
func (p *Pipeline) flag(base context.Context, target Target, ownerID int64) error {
	mark := func() error {
		stepCtx, cancel := context.WithTimeout(base, p.timeout)
		defer cancel()
		return target.MarkHasAttachments(stepCtx)
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Debug("flag retry", zap.Int64("owner_id", ownerID), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotify(mark, backoff.WithMaxRetries(p.backoff(), p.retries), notify)
}

func (p *Pipeline) outcome(label string) {
	if p.metrics != nil {
		p.metrics.Sends.WithLabelValues(label).Inc()
	}
}

func readAll(f File) ([]byte, error) {
	if f.Open == nil {
		return nil, errors.New("file has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// fileName keeps the last path element of the client's name. Files
// without a usable name are named after the send time.
func fileName(name string, now time.Time, index int) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.Itoa(index)
	}
	return base
}

// detectContentType sniffs data. The declared type is used only when
// sniffing finds nothing more specific than a byte stream.
func detectContentType(data []byte, declared string) string {
	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") && declared != "" {
		return declared
	}
	return detected.String()
}
