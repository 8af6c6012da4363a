package mtproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/telegram/query/messages"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

const maxBatch = 100

// Client implements scrape.Client over a raw tg API client.
type Client struct {
	api        *tg.Client
	resolver   peer.Resolver
	downloader *downloader.Downloader
	logger     *zap.Logger
}

// NewClient wraps api.
func NewClient(api *tg.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:        api,
		resolver:   peer.DefaultResolver(api),
		downloader: downloader.NewDownloader(),
		logger:     logger,
	}
}

// History resolves channel as a public username and walks messages.getHistory
// newest first.
func (c *Client) History(ctx context.Context, channel string, limit int, fn func(scrape.Post) error) error {
	if limit <= 0 {
		return nil
	}
	inputPeer, err := c.resolver.ResolveDomain(ctx, channel)
	if err != nil {
		return translate(fmt.Errorf("resolve %s: %w", channel, err))
	}

	batch := limit
	if batch > maxBatch {
		batch = maxBatch
	}
	iter := messages.NewQueryBuilder(c.api).GetHistory(inputPeer).BatchSize(batch).Iter()
	seen := 0
	for seen < limit && iter.Next(ctx) {
		post, ok := toPost(iter.Value().Msg)
		if !ok {
			continue
		}
		seen++
		if err := fn(post); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return translate(fmt.Errorf("history %s: %w", channel, err))
	}
	return nil
}

// Download writes the post's photo or document to basePath plus the
// extension of its kind.
func (c *Client) Download(ctx context.Context, post scrape.Post, basePath string) (string, error) {
	h, ok := post.Media.(mediaHandle)
	if !ok {
		return "", fmt.Errorf("message %d: unsupported media", post.Message.ID)
	}
	path := basePath + h.ext
	if _, err := c.downloader.Download(c.api, h.location).ToPath(ctx, path); err != nil {
		return "", translate(fmt.Errorf("download message %d: %w", post.Message.ID, err))
	}
	return path, nil
}

// translate maps FLOOD_WAIT errors to scrape.RateLimitError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &scrape.RateLimitError{Wait: wait}
	}
	var rl *scrape.RateLimitError
	if errors.As(err, &rl) {
		return rl
	}
	return err
}
