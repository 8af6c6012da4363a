package scrape

import (
	"context"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/metrics"
)

// MediaFetcher downloads one post's attachment into a directory. Failures
// are logged and reported, never returned.
type MediaFetcher struct {
	logger *zap.Logger
}

// NewMediaFetcher builds a MediaFetcher.
func NewMediaFetcher(logger *zap.Logger) *MediaFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaFetcher{logger: logger}
}

// MediaPath is the extension-less destination for a message's media.
func MediaPath(dir string, messageID int64) string {
	return filepath.Join(dir, strconv.FormatInt(messageID, 10))
}

// Fetch downloads post's media to dir/<message id> and returns the written
// path. It makes a single attempt.
func (f *MediaFetcher) Fetch(ctx context.Context, client Client, post Post, dir string) (string, bool) {
	base := MediaPath(dir, post.Message.ID)
	path, err := client.Download(ctx, post, base)
	if err != nil {
		metrics.ObserveMedia(false)
		f.logger.Warn("media download failed",
			zap.Int64("message_id", post.Message.ID),
			zap.String("path", base),
			zap.Error(err),
		)
		return "", false
	}
	metrics.ObserveMedia(true)
	f.logger.Debug("media downloaded",
		zap.Int64("message_id", post.Message.ID),
		zap.String("path", path),
	)
	return path, true
}
