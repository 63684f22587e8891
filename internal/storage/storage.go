// Package storage puts attachment bytes into object storage and hands back
// the stable URL clients download them from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lalith-99/huddle/internal/config"
	"go.uber.org/zap"
)

// ErrStorageDisabled is returned by backends that were started without
// the settings they need.
var ErrStorageDisabled = errors.New("object storage is not configured")

// ObjectStorage is last-write-wins at a key. PublicURL does no I/O.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
	Health(ctx context.Context) error
}

// New picks the backend named by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Storage(ctx, cfg, logger)
	case "local":
		return NewLocalStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
