// Package load reads scraped batch files and inserts them into the raw
// landing schema.
package load

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/metrics"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/postgres"
)

// Store is the subset of postgres.RawStore the loader needs.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertMessages(ctx context.Context, rows []postgres.Row) (postgres.InsertResult, error)
}

// FileReport describes one committed file.
type FileReport struct {
	Path      string `json:"path"`
	Channel   string `json:"channel"`
	Processed int    `json:"processed"`
	Inserted  int    `json:"inserted"`
}

// Report totals a LoadAll pass. Processed counts every record handed to the
// store, including conflict no-ops.
type Report struct {
	Files     []FileReport `json:"files"`
	Processed int          `json:"processed"`
	Inserted  int          `json:"inserted"`
}

// Loader walks <root>/<date>/<channel>.json files.
type Loader struct {
	root   string
	store  Store
	logger *zap.Logger
}

// New builds a Loader reading from root.
func New(root string, store Store, logger *zap.Logger) (*Loader, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("raw messages directory is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{root: root, store: store, logger: logger}, nil
}

// Files lists the batch files under root in lexical (date, channel) order.
func (l *Loader) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.root, "*", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob batch files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadAll ensures the schema then loads every batch file, one transaction
// per file. The first storage error stops the pass; files already committed
// stay committed and are included in the returned report.
func (l *Loader) LoadAll(ctx context.Context) (Report, error) {
	var report Report
	if err := l.store.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensure schema: %w", err)
	}
	files, err := l.Files()
	if err != nil {
		return report, err
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("load interrupted: %w", err)
		}
		fr, err := l.LoadFile(ctx, file)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, fr)
		report.Processed += fr.Processed
		report.Inserted += fr.Inserted
	}
	l.logger.Info("raw load finished",
		zap.Int("files", len(report.Files)),
		zap.Int("processed", report.Processed),
		zap.Int("inserted", report.Inserted),
	)
	return report, nil
}

// LoadFile inserts one batch file. The channel is the file's base name.
func (l *Loader) LoadFile(ctx context.Context, path string) (FileReport, error) {
	channel := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fr := FileReport{Path: path, Channel: channel}

	// #nosec G304 -- paths come from globbing the configured data directory.
	raw, err := os.ReadFile(path)
	if err != nil {
		return fr, fmt.Errorf("read %s: %w", path, err)
	}
	rows, err := ParseBatch(channel, raw)
	if err != nil {
		return fr, fmt.Errorf("parse %s: %w", path, err)
	}
	res, err := l.store.InsertMessages(ctx, rows)
	if err != nil {
		return fr, fmt.Errorf("load %s: %w", path, err)
	}
	fr.Processed = res.Processed
	fr.Inserted = res.Inserted
	metrics.ObserveLoadedFile(res.Processed)
	l.logger.Info("batch loaded",
		zap.String("file", path),
		zap.String("channel", channel),
		zap.Int("processed", res.Processed),
		zap.Int("inserted", res.Inserted),
	)
	return fr, nil
}

// ParseBatch decodes a JSON array of message records into rows for channel.
// Each row keeps the element's original bytes as raw_json; fields that are
// missing or malformed become NULL.
func ParseBatch(channel string, data []byte) ([]postgres.Row, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	rows := make([]postgres.Row, 0, len(elems))
	for i, elem := range elems {
		dec := json.NewDecoder(bytes.NewReader(elem))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode element %d: %w", i, err)
		}
		row := postgres.Row{Channel: channel, RawJSON: compact(elem)}
		if m, ok := record.FromJSON(v).(record.Mapping); ok {
			f := record.Project(m)
			row.MessageID = f.MessageID
			row.Text = f.Text
			row.Date = f.Date
			row.FromID = f.FromID
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func compact(elem json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, elem); err != nil {
		return append([]byte(nil), elem...)
	}
	return buf.Bytes()
}
