// Package storage keeps attachment blobs on an afero filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	ErrTooLarge = errors.New("file exceeds the upload size limit")
	ErrNotFound = errors.New("stored file not found")
)

const keyPrefix = "task_attachments"

type Storage struct {
	fs       afero.Fs
	maxBytes int64
	logger   *zap.Logger
}

// New stores blobs on fs. maxBytes <= 0 disables the size limit.
func New(fs afero.Fs, maxBytes int64, logger *zap.Logger) *Storage {
	return &Storage{fs: fs, maxBytes: maxBytes, logger: logger}
}

// NewOS roots storage at dir on the local disk, creating it if needed.
func NewOS(dir string, maxBytes int64, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), maxBytes, logger), nil
}

// Save streams r into a new blob and returns its key and byte count.
// Nothing is kept when the upload exceeds the size limit.
func (s *Storage) Save(filename string, r io.Reader) (string, int64, error) {
	key := newKey(filename, time.Now().UTC())
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", 0, fmt.Errorf("creating blob dir: %w", err)
	}

	f, err := s.fs.OpenFile(key, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("creating blob: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		s.remove(key)
		return "", 0, fmt.Errorf("writing blob: %w", copyErr)
	case closeErr != nil:
		s.remove(key)
		return "", 0, fmt.Errorf("closing blob: %w", closeErr)
	case s.maxBytes > 0 && n > s.maxBytes:
		s.remove(key)
		return "", 0, ErrTooLarge
	}

	s.logger.Debug("Blob stored", zap.String("key", key), zap.Int64("size", n))
	return key, n, nil
}

// Open returns a reader for the blob under key.
func (s *Storage) Open(key string) (afero.File, error) {
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a blob. A missing blob is not an error.
func (s *Storage) Delete(key string) error {
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Storage) remove(key string) {
	if err := s.Delete(key); err != nil {
		s.logger.Warn("Failed to remove partial blob", zap.String("key", key), zap.Error(err))
	}
}

// newKey builds task_attachments/YYYY/MM/<uuid><ext>, keeping only a short lowercase extension.
func newKey(filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if len(ext) > 16 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return fmt.Sprintf("%s/%04d/%02d/%s%s", keyPrefix, now.Year(), int(now.Month()), uuid.NewString(), ext)
}
