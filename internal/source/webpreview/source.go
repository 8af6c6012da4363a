// Package webpreview reads public channels from the t.me/s web preview
// using colly. It needs no credentials but only sees what the preview shows.
package webpreview

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

const (
	defaultBaseURL    = "https://t.me"
	defaultTimeout    = 15 * time.Second
	defaultRetryAfter = 30 * time.Second
)

// Config controls collector behavior.
type Config struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
	// RetryAfter is used when a 429 response carries no Retry-After header.
	RetryAfter time.Duration
	// Limiter, when set, paces every page and media request.
	Limiter Waiter
}

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Source implements both scrape.Source and scrape.Client; the preview has
// no session to open.
type Source struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// mediaURL is the Post.Media payload for preview attachments.
type mediaURL string

// New builds a Source.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = defaultRetryAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Source{cfg: cfg, base: c, logger: logger}, nil
}

// Open runs fn with the Source as its Client.
func (s *Source) Open(ctx context.Context, fn func(ctx context.Context, c scrape.Client) error) error {
	return fn(ctx, s)
}

// History pages backwards through /s/<channel>?before=<id> until limit
// posts were yielded or the preview runs out.
func (s *Source) History(ctx context.Context, channel string, limit int, fn func(scrape.Post) error) error {
	seen := 0
	var before int64
	for seen < limit {
		posts, err := s.fetchPage(ctx, channel, before)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}
		oldest := posts[len(posts)-1].Message.ID
		for _, p := range posts {
			if before > 0 && p.Message.ID >= before {
				continue
			}
			if seen >= limit {
				return nil
			}
			seen++
			if err := fn(p); err != nil {
				return err
			}
		}
		if oldest <= 1 || (before > 0 && oldest >= before) {
			return nil
		}
		before = oldest
	}
	return nil
}

// fetchPage returns the posts on one preview page, newest first.
func (s *Source) fetchPage(ctx context.Context, channel string, before int64) ([]scrape.Post, error) {
	pageURL := s.cfg.BaseURL + "/s/" + url.PathEscape(channel)
	if before > 0 {
		pageURL += "?before=" + strconv.FormatInt(before, 10)
	}

	collector := s.base.Clone()
	var (
		posts    []scrape.Post
		fetchErr error
	)
	collector.OnHTML(".tgme_widget_message[data-post]", func(e *colly.HTMLElement) {
		if post, ok := parsePost(e, channel); ok {
			posts = append(posts, post)
		}
	})
	collector.OnError(s.errorHook(&fetchErr))

	if err := s.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	s.logger.Debug("preview page fetched", zap.String("url", pageURL), zap.Int("posts", len(posts)))
	return posts, nil
}

// Download fetches the attachment URL to basePath plus the URL's extension.
func (s *Source) Download(ctx context.Context, post scrape.Post, basePath string) (string, error) {
	u, ok := post.Media.(mediaURL)
	if !ok || u == "" {
		return "", fmt.Errorf("message %d: unsupported media", post.Message.ID)
	}
	target := basePath + extension(string(u))

	collector := s.base.Clone()
	// Videos routinely exceed colly's default body cap.
	collector.MaxBodySize = 0
	var (
		fetchErr error
		writeErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		// Download may already have returned on cancellation.
		if ctx.Err() != nil {
			return
		}
		writeErr = os.WriteFile(target, r.Body, 0o600)
	})
	collector.OnError(s.errorHook(&fetchErr))

	if err := s.runCollector(ctx, collector, string(u), &fetchErr); err != nil {
		return "", fmt.Errorf("download message %d: %w", post.Message.ID, err)
	}
	if writeErr != nil {
		return "", fmt.Errorf("write %s: %w", target, writeErr)
	}
	return target, nil
}

func (s *Source) errorHook(fetchErr *error) colly.ErrorCallback {
	return func(r *colly.Response, err error) {
		if r != nil && r.StatusCode == http.StatusTooManyRequests {
			*fetchErr = &scrape.RateLimitError{Wait: retryAfter(r.Headers, s.cfg.RetryAfter)}
			return
		}
		*fetchErr = err
	}
}

func (s *Source) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx, target); err != nil {
			return err
		}
	}
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func retryAfter(h *http.Header, fallback time.Duration) time.Duration {
	if h == nil {
		return fallback
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return fallback
}

var backgroundURL = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)

func parsePost(e *colly.HTMLElement, channel string) (scrape.Post, bool) {
	ref := e.Attr("data-post")
	idx := strings.LastIndex(ref, "/")
	if idx < 0 {
		return scrape.Post{}, false
	}
	id, err := strconv.ParseInt(ref[idx+1:], 10, 64)
	if err != nil {
		return scrape.Post{}, false
	}

	text := strings.TrimSpace(e.ChildText(".tgme_widget_message_text"))
	payload := record.Mapping{
		"_":           record.String("Message"),
		"id":          record.Int(id),
		"peer_id":     record.Mapping{"_": record.String("PeerChannel"), "username": record.String(channel)},
		"date":        record.Null,
		"message":     record.String(text),
		"from_id":     record.Null,
		"views":       record.Null,
		"post_author": record.Null,
		"media":       record.Null,
		"post":        record.Bool(true),
	}
	msg := record.Message{ID: id, Text: text}

	if dt := e.ChildAttr(".tgme_widget_message_date time", "datetime"); dt != "" {
		if t, err := record.ParseTime(dt); err == nil {
			payload["date"] = record.Time(t)
			msg.Date = t
		}
	}
	if views, ok := parseCount(e.ChildText(".tgme_widget_message_views")); ok {
		payload["views"] = record.Int(views)
	}
	if author := strings.TrimSpace(e.ChildText(".tgme_widget_message_from_author")); author != "" {
		payload["post_author"] = record.String(author)
	}

	post := scrape.Post{}
	if m := backgroundURL.FindStringSubmatch(e.ChildAttr(".tgme_widget_message_photo_wrap", "style")); m != nil {
		payload["media"] = record.Mapping{"_": record.String("MessageMediaPhoto"), "url": record.String(m[1])}
		msg.HasMedia = true
		post.Media = mediaURL(e.Request.AbsoluteURL(m[1]))
	} else if src := e.ChildAttr("video.tgme_widget_message_video", "src"); src != "" {
		payload["media"] = record.Mapping{"_": record.String("MessageMediaDocument"), "url": record.String(src)}
		msg.HasMedia = true
		post.Media = mediaURL(e.Request.AbsoluteURL(src))
	}

	msg.Payload = payload
	post.Message = msg
	return post, true
}

// parseCount reads preview counters such as "987", "1.2K" or "3M".
func parseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f*mult + 0.5), true
}

func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 5 {
		return ""
	}
	return ext
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ scrape.Client = (*Source)(nil)
var _ scrape.Source = (*Source)(nil)
