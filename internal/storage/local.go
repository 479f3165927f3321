// Package storage holds ObjectStorage implementations for uploaded files.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// Local writes objects under a directory that is served at baseURL.
type Local struct {
	dir     string
	baseURL string
	log     logger.Logger
}

func NewLocal(dir, baseURL string, log logger.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), log: log}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

// Put writes data atomically: to a temp file first, renamed into place.
func (l *Local) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", apperrors.Validation("invalid object key %q", key)
	}

	target := filepath.Join(l.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", apperrors.Unavailable(err, "create object dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", apperrors.Unavailable(err, "create object")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", apperrors.Unavailable(err, "write object")
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.Unavailable(err, "write object")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", apperrors.Unavailable(err, "commit object")
	}

	l.log.Debug("Object stored", "key", key, "content_type", contentType, "size", len(data))
	return l.baseURL + "/" + filepath.ToSlash(clean), nil
}
