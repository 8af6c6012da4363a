// Package local mirrors archive objects into a directory tree.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory objects are written under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes objects to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates the base directory when missing and checks it is writable.
func New(cfg Config) (*BlobStore, error) {
	base := strings.TrimSpace(cfg.BaseDir)
	if base == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(base)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(base, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory %s is not a directory", base)
	}

	probe, err := os.CreateTemp(base, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(base)}, nil
}

// PutObject streams body to <base>/<path> and returns a file:// URI. The
// object appears atomically.
func (s *BlobStore) PutObject(ctx context.Context, path string, _ string, body io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}

	fullPath := filepath.Clean(filepath.Join(s.baseDir, path))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("rename object: %w", err)
	}
	return "file://" + fullPath, nil
}
