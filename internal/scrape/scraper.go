package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Scraper collects one channel's recent history.
type Scraper struct {
	media  *MediaFetcher
	logger *zap.Logger
}

// NewScraper builds a Scraper around media.
func NewScraper(media *MediaFetcher, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if media == nil {
		media = NewMediaFetcher(logger)
	}
	return &Scraper{media: media, logger: logger}
}

// Scrape iterates at most limit posts of channel in platform order, fetching
// media for each post that has any into imgDir. Any error from the client,
// including a RateLimitError, discards everything collected so far.
func (s *Scraper) Scrape(ctx context.Context, client Client, channel string, limit int, imgDir string) (Result, error) {
	res := Result{Channel: channel}
	err := client.History(ctx, channel, limit, func(post Post) error {
		res.Messages = append(res.Messages, post)
		if !post.HasMedia() {
			return nil
		}
		if path, ok := s.media.Fetch(ctx, client, post, imgDir); ok {
			res.MediaFiles = append(res.MediaFiles, path)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scrape %s: %w", channel, err)
	}
	s.logger.Info("channel scraped",
		zap.String("channel", channel),
		zap.Int("messages", len(res.Messages)),
		zap.Int("media_files", len(res.MediaFiles)),
	)
	return res, nil
}
