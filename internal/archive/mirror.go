// Package archive copies finished scrape runs into a blob store laid out
// like the local data lake.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Object prefixes inside the blob store.
const (
	MessagesPrefix = "telegram_messages"
	ImagesPrefix   = "telegram_images"
)

// Mirror uploads batch files and media for each Scrape Run.
type Mirror struct {
	store  BlobStore
	logger *zap.Logger
}

// New builds a Mirror writing to store.
func New(store BlobStore, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{store: store, logger: logger}
}

// MirrorRun uploads run.File to telegram_messages/<date>/<channel>.json and
// every media file to telegram_images/<date>/<channel>/<name>. All files are
// attempted; the returned error joins every failure.
func (m *Mirror) MirrorRun(ctx context.Context, run scrape.MirroredRun) error {
	var errs []error

	batch := path.Join(MessagesPrefix, run.Date, run.Channel+".json")
	if uri, err := m.put(ctx, batch, run.File, "application/json"); err != nil {
		errs = append(errs, err)
	} else {
		m.logger.Debug("batch mirrored", zap.String("uri", uri))
	}

	for _, file := range run.MediaFiles {
		name := filepath.Base(file)
		object := path.Join(ImagesPrefix, run.Date, run.Channel, name)
		if _, err := m.put(ctx, object, file, contentType(name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) put(ctx context.Context, object, file, contentType string) (string, error) {
	// #nosec G304 -- files come from the coordinator's own run directories.
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file, err)
	}
	defer func() {
		_ = f.Close()
	}()
	uri, err := m.store.PutObject(ctx, object, contentType, f)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", object, err)
	}
	return uri, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
