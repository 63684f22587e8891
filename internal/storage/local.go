package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lalith-99/huddle/internal/config"
	"go.uber.org/zap"
)

// LocalStorage writes objects under a directory on disk. The server mounts
// that directory so PublicURL resolves.
type LocalStorage struct {
	basePath string
	baseURL  string
	logger   *zap.Logger
	disabled bool
}

func NewLocalStorage(cfg *config.Config, logger *zap.Logger) (*LocalStorage, error) {
	logger = logger.Named("local-storage")

	basePath := strings.TrimSpace(cfg.LocalStoragePath)
	if basePath == "" {
		logger.Warn("LOCAL_STORAGE_PATH is not set; attachment uploads will fail")
		return &LocalStorage{logger: logger, disabled: true}, nil
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}

	st := &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(strings.TrimSpace(cfg.LocalStorageBaseURL), "/"),
		logger:   logger,
	}
	logger.Info("local storage initialized",
		zap.String("path", basePath),
		zap.String("base_url", st.baseURL),
	)
	return st, nil
}

// BasePath is the directory served under the public base URL.
func (l *LocalStorage) BasePath() string {
	return l.basePath
}

func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if l.disabled {
		return ErrStorageDisabled
	}
	fullPath, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// A failed copy must never leave a truncated object at key.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move file into place: %w", err)
	}

	l.logger.Debug("file stored",
		zap.String("key", key),
		zap.Int64("bytes", written),
		zap.String("content_type", contentType),
	)
	return nil
}

func (l *LocalStorage) PublicURL(key string) string {
	if l.baseURL == "" {
		return "file://" + filepath.Join(l.basePath, filepath.FromSlash(key))
	}
	return l.baseURL + "/" + escapeKey(key)
}

func (l *LocalStorage) Health(ctx context.Context) error {
	if l.disabled {
		return nil
	}
	probe := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}

// resolve maps key to a path that stays inside basePath.
func (l *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	full := filepath.Join(l.basePath, clean)
	rel, err := filepath.Rel(l.basePath, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return full, nil
}
