package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/metrics"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
)

const defaultChannelDelay = 3 * time.Second

// Config drives a Coordinator pass.
type Config struct {
	Channels     []string
	Limit        int
	MessagesDir  string
	ImagesDir    string
	ChannelDelay time.Duration
}

// Dependencies are the collaborators of a Coordinator. Mirror, Publisher,
// IDs and Hasher are optional.
type Dependencies struct {
	Scraper   *Scraper
	Clock     Clock
	Pauser    Pauser
	Mirror    Mirror
	Publisher Publisher
	IDs       IDGenerator
	Hasher    FileHasher
	Logger    *zap.Logger
}

// Coordinator scrapes every configured channel in order and writes one
// batch file per successful channel.
type Coordinator struct {
	cfg       Config
	scraper   *Scraper
	clock     Clock
	pauser    Pauser
	mirror    Mirror
	publisher Publisher
	ids       IDGenerator
	hasher    FileHasher
	logger    *zap.Logger
}

// NewCoordinator validates cfg and wires deps.
func NewCoordinator(cfg Config, deps Dependencies) (*Coordinator, error) {
	if cfg.MessagesDir == "" || cfg.ImagesDir == "" {
		return nil, errors.New("messages and images directories are required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("message limit must be > 0, got %d", cfg.Limit)
	}
	if deps.Clock == nil || deps.Pauser == nil {
		return nil, errors.New("clock and pauser are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scraper := deps.Scraper
	if scraper == nil {
		scraper = NewScraper(nil, logger)
	}
	if cfg.ChannelDelay < 0 {
		cfg.ChannelDelay = defaultChannelDelay
	}
	return &Coordinator{
		cfg:       cfg,
		scraper:   scraper,
		clock:     deps.Clock,
		pauser:    deps.Pauser,
		mirror:    deps.Mirror,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		hasher:    deps.Hasher,
		logger:    logger,
	}, nil
}

// Run processes the channel list strictly in order. Rate-limited and failed
// channels are recorded and skipped. Run returns an error only when ctx is
// done or a run directory cannot be created; the summary covers every
// channel reached before that.
func (c *Coordinator) Run(ctx context.Context, client Client) (Summary, error) {
	summary := Summary{Started: c.clock.Now().UTC()}
	if c.ids != nil {
		id, err := c.ids.NewID()
		if err != nil {
			return summary, fmt.Errorf("generate run id: %w", err)
		}
		summary.RunID = id
	}
	logger := c.logger.With(zap.String("run_id", summary.RunID))

	for i, ref := range c.cfg.Channels {
		if err := ctx.Err(); err != nil {
			summary.Finished = c.clock.Now().UTC()
			return summary, fmt.Errorf("scrape run interrupted: %w", err)
		}
		report, err := c.runChannel(ctx, client, ref, summary.RunID, logger)
		summary.Channels = append(summary.Channels, report)
		if err != nil {
			summary.Finished = c.clock.Now().UTC()
			return summary, err
		}
		metrics.ObserveChannel(string(report.Outcome))
		if i < len(c.cfg.Channels)-1 {
			c.pauser.Pause(ctx, c.cfg.ChannelDelay)
		}
	}

	summary.Finished = c.clock.Now().UTC()
	logger.Info("scrape run finished",
		zap.Int("channels", len(summary.Channels)),
		zap.Int("succeeded", summary.Count(OutcomeSucceeded)),
		zap.Int("rate_limited", summary.Count(OutcomeRateLimited)),
		zap.Int("failed", summary.Count(OutcomeFailed)),
	)
	return summary, nil
}

func (c *Coordinator) runChannel(ctx context.Context, client Client, ref, runID string, logger *zap.Logger) (ChannelReport, error) {
	name := ChannelName(ref)
	date := c.clock.Now().UTC().Format(DateLayout)
	report := ChannelReport{Channel: name, Date: date}
	logger = logger.With(zap.String("channel", name), zap.String("date", date))

	msgDir := filepath.Join(c.cfg.MessagesDir, date)
	imgDir := filepath.Join(c.cfg.ImagesDir, date, name)
	for _, dir := range []string{msgDir, imgDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			report.Outcome = OutcomeFailed
			report.Error = err.Error()
			return report, fmt.Errorf("create run dir %s: %w", dir, err)
		}
	}

	logger.Info("scraping channel")
	res, err := c.scraper.Scrape(ctx, client, name, c.cfg.Limit, imgDir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Outcome = OutcomeSkipped
			report.Error = err.Error()
			return report, fmt.Errorf("scrape run interrupted: %w", ctxErr)
		}
		if rl, ok := AsRateLimit(err); ok {
			logger.Warn("rate limited, sleeping before next channel", zap.Duration("wait", rl.Wait))
			metrics.ObserveRateLimitWait(rl.Wait)
			c.pauser.Pause(ctx, rl.Wait)
			report.Outcome = OutcomeRateLimited
			report.Wait = rl.Wait
			return report, nil
		}
		logger.Error("channel scrape failed", zap.Error(err))
		report.Outcome = OutcomeFailed
		report.Error = err.Error()
		return report, nil
	}

	file := filepath.Join(msgDir, name+".json")
	if err := WriteBatch(file, res.Messages); err != nil {
		logger.Error("write batch failed", zap.String("file", file), zap.Error(err))
		report.Outcome = OutcomeFailed
		report.Error = err.Error()
		return report, nil
	}
	report.Outcome = OutcomeSucceeded
	report.File = file
	report.Messages = len(res.Messages)
	report.MediaFiles = len(res.MediaFiles)
	if c.hasher != nil {
		sum, err := c.hasher.HashFile(file)
		if err != nil {
			logger.Warn("checksum batch failed", zap.Error(err))
		}
		report.Checksum = sum
	}
	metrics.ObserveMessages(name, report.Messages)
	logger.Info("channel batch written",
		zap.String("file", file),
		zap.Int("messages", report.Messages),
		zap.Int("media_files", report.MediaFiles),
	)

	c.afterWrite(ctx, runID, report, res.MediaFiles, logger)
	return report, nil
}

func (c *Coordinator) afterWrite(ctx context.Context, runID string, report ChannelReport, media []string, logger *zap.Logger) {
	if c.mirror != nil {
		run := MirroredRun{Date: report.Date, Channel: report.Channel, File: report.File, MediaFiles: media}
		if err := c.mirror.MirrorRun(ctx, run); err != nil {
			logger.Warn("archive mirror failed", zap.Error(err))
		}
	}
	if c.publisher != nil {
		event := RunEvent{
			RunID:      runID,
			Channel:    report.Channel,
			Date:       report.Date,
			Messages:   report.Messages,
			MediaFiles: report.MediaFiles,
			File:       report.File,
			Checksum:   report.Checksum,
		}
		if _, err := c.publisher.Publish(ctx, event); err != nil {
			logger.Warn("publish run event failed", zap.Error(err))
		}
	}
}

// WriteBatch normalizes posts and writes them to path as an indented JSON
// array with non-ASCII and HTML characters kept literal. The file is
// replaced atomically.
func WriteBatch(path string, posts []Post) error {
	values := make([]record.Value, len(posts))
	for i, p := range posts {
		values[i] = p.Message.Value()
	}
	batch := record.NormalizeAll(values)

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync batch: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename batch: %w", err)
	}
	return nil
}
