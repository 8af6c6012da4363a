// Package postgres persists scraped messages into the raw landing schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultSchema = "raw"

// RawStoreConfig controls the Postgres connection pool used for raw rows.
type RawStoreConfig struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Row is one persisted message. Nil pointers are stored as NULL.
type Row struct {
	MessageID *int64
	Channel   string
	Text      *string
	Date      *time.Time
	FromID    *string
	RawJSON   []byte
}

// InsertResult counts rows handed to the store and rows that were new.
type InsertResult struct {
	Processed int
	Inserted  int
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// RawStore writes into <schema>.telegram_messages.
type RawStore struct {
	pool   pool
	schema string
}

// NewRawStore connects a pool using cfg.
func NewRawStore(ctx context.Context, cfg RawStoreConfig) (*RawStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	schema, err := schemaName(cfg.Schema)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RawStore{pool: p, schema: schema}, nil
}

// NewRawStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRawStoreWithPool(p pool, schema string) (*RawStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := schemaName(schema)
	if err != nil {
		return nil, err
	}
	return &RawStore{pool: p, schema: name}, nil
}

func schemaName(s string) (string, error) {
	if s == "" {
		return defaultSchema, nil
	}
	if !validIdentifier.MatchString(s) {
		return "", fmt.Errorf("invalid schema name %q", s)
	}
	return s, nil
}

// Pool exposes the underlying pgx pool when the store owns one.
func (s *RawStore) Pool() (*pgxpool.Pool, bool) {
	p, ok := s.pool.(*pgxpool.Pool)
	return p, ok
}

// Close releases the underlying pool resources.
func (s *RawStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity with a trivial statement.
func (s *RawStore) Ping(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *RawStore) schemaStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schema),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.telegram_messages (
	id BIGSERIAL PRIMARY KEY,
	message_id BIGINT,
	channel VARCHAR(255),
	message_text TEXT,
	date TIMESTAMPTZ,
	from_id VARCHAR(255),
	raw_json JSONB
)`, s.schema),
		fmt.Sprintf(`
CREATE UNIQUE INDEX IF NOT EXISTS telegram_messages_message_channel_key
	ON %s.telegram_messages (message_id, channel)`, s.schema),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.image_detections (
	id BIGSERIAL PRIMARY KEY,
	message_id BIGINT,
	image_path TEXT,
	detected_object_class TEXT,
	confidence_score DOUBLE PRECISION,
	bbox TEXT,
	detection_time TIMESTAMP
)`, s.schema),
	}
}

// EnsureSchema creates the schema, tables and dedup index when absent.
func (s *RawStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", s.schema, err)
		}
	}
	return nil
}

func (s *RawStore) insertSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s.telegram_messages (
	message_id,
	channel,
	message_text,
	date,
	from_id,
	raw_json
) VALUES (
	$1,$2,$3,$4,$5,$6
)
ON CONFLICT (message_id, channel) DO NOTHING`, s.schema)
}

// InsertMessages writes rows in one transaction. Rows whose (message_id,
// channel) already exist are skipped, so the first write wins. Either every
// row is applied or none is.
func (s *RawStore) InsertMessages(ctx context.Context, rows []Row) (res InsertResult, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return InsertResult{}, fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	query := s.insertSQL()
	for i, row := range rows {
		tag, execErr := tx.Exec(ctx, query, row.args()...)
		if execErr != nil {
			return InsertResult{}, fmt.Errorf("insert row %d: %w", i, execErr)
		}
		res.Processed++
		res.Inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return InsertResult{}, fmt.Errorf("commit insert: %w", err)
	}
	return res, nil
}

func (r Row) args() []any {
	return []any{
		nullable(r.MessageID),
		r.Channel,
		nullable(r.Text),
		nullable(r.Date),
		nullable(r.FromID),
		r.RawJSON,
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
