// Package app builds the pipeline's dependencies from configuration and
// exposes one entry point per command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/api"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/archive"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/clock/system"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/config"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/hash/sha256"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/id/uuid"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/load"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/pipeline"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/policy/ratelimit"
	memorypublisher "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/publisher/memory"
	gcppublisher "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/publisher/pubsub"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/source/mtproto"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/source/webpreview"
	gcsstorage "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/gcs"
	localstorage "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/local"
	memorystorage "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/memory"
	pgstore "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/postgres"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/migrations"
)

// eventBacklog bounds the run events kept in memory without a Pub/Sub topic.
const eventBacklog = 500

// App contains the application's dependencies. Expensive clients are
// created on first use.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	ids    *uuid.Generator

	// Prompt reads the MTProto login code. Defaults to stdin.
	Prompt mtproto.CodePrompt

	events       *memorypublisher.Publisher
	store        *pgstore.RawStore
	gcs          *storage.Client
	pubsubClient *pubsub.Client
	topic        *pubsub.Topic
	runner       *pipeline.Runner
}

// New creates an App. Nothing is dialed until a command needs it.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
		events: memorypublisher.NewBounded("scrape-runs", eventBacklog),
		Prompt: mtproto.ReaderPrompt(os.Stdin, os.Stderr),
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Scrape opens the configured source and runs the coordinator over every
// channel.
func (a *App) Scrape(ctx context.Context) (scrape.Summary, error) {
	if err := a.cfg.RequireTelegram(); err != nil {
		return scrape.Summary{}, err
	}
	src, err := a.source()
	if err != nil {
		return scrape.Summary{}, err
	}
	coord, err := a.coordinator(ctx)
	if err != nil {
		return scrape.Summary{}, err
	}

	var summary scrape.Summary
	err = src.Open(ctx, func(ctx context.Context, client scrape.Client) error {
		var runErr error
		summary, runErr = coord.Run(ctx, client)
		return runErr
	})
	if err != nil {
		return summary, fmt.Errorf("scrape: %w", err)
	}
	return summary, nil
}

// Load inserts every batch file under the raw messages directory.
func (a *App) Load(ctx context.Context) (load.Report, error) {
	store, err := a.rawStore(ctx)
	if err != nil {
		return load.Report{}, err
	}
	loader, err := load.New(a.cfg.Paths.RawMessagesDir, store, a.logger.Named("loader"))
	if err != nil {
		return load.Report{}, fmt.Errorf("loader init failed: %w", err)
	}
	report, err := loader.LoadAll(ctx)
	if err != nil {
		return report, fmt.Errorf("load: %w", err)
	}
	return report, nil
}

// Migrate applies the embedded schema migrations. They only manage the raw
// schema; other database.schema values are rejected.
func (a *App) Migrate(ctx context.Context) (bool, error) {
	if schema := a.cfg.Database.Schema; schema != "" && schema != pgstore.MigrationSchema {
		return false, fmt.Errorf("migrate only manages schema %q, got database.schema %q; the loader creates other schemas itself",
			pgstore.MigrationSchema, schema)
	}
	store, err := a.rawStore(ctx)
	if err != nil {
		return false, err
	}
	pool, ok := store.Pool()
	if !ok {
		return false, errors.New("migrations need a pgx pool")
	}
	applied, err := pgstore.ApplyMigrations(pool, migrations.FS, a.logger.Named("migrate"))
	if err != nil {
		return false, fmt.Errorf("migrate: %w", err)
	}
	return applied, nil
}

// RunPipeline executes scrape, load, transform and enrich in order. When
// server.port is set the ops server runs for the duration.
func (a *App) RunPipeline(ctx context.Context) (pipeline.Report, error) {
	runner, err := a.pipelineRunner()
	if err != nil {
		return pipeline.Report{}, err
	}
	if a.cfg.Server.Port > 0 {
		srv := a.server(ctx)
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := srv.Serve(srvCtx, a.addr()); err != nil {
				a.logger.Error("ops server stopped", zap.Error(err))
			}
		}()
	}
	return runner.Run(ctx)
}

// Serve runs only the ops server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Server.Port <= 0 {
		return errors.New("server.port must be > 0 to serve")
	}
	if _, err := a.pipelineRunner(); err != nil {
		return err
	}
	return a.server(ctx).Serve(ctx, a.addr())
}

func (a *App) addr() string {
	return ":" + strconv.Itoa(a.cfg.Server.Port)
}

func (a *App) server(ctx context.Context) *api.Server {
	var db api.Pinger
	if a.cfg.RequireDatabase() == nil {
		if store, err := a.rawStore(ctx); err == nil {
			db = store
		} else {
			a.logger.Warn("ops server without database readiness", zap.Error(err))
		}
	}
	var runs api.RunHistory
	if a.runner != nil {
		runs = a.runner
	}
	return api.NewServer(db, runs, a.events, a.logger.Named("api"))
}

func (a *App) pipelineRunner() (*pipeline.Runner, error) {
	if a.runner != nil {
		return a.runner, nil
	}
	stages := []pipeline.Stage{
		pipeline.Func{StageName: "scrape", Fn: func(ctx context.Context) error {
			_, err := a.Scrape(ctx)
			return err
		}},
		pipeline.Func{StageName: "load", Fn: func(ctx context.Context) error {
			_, err := a.Load(ctx)
			return err
		}},
		pipeline.NewCommandStage("transform", a.cfg.Pipeline.Transform, a.logger),
		pipeline.NewCommandStage("enrich", a.cfg.Pipeline.Enrich, a.logger),
	}
	runner, err := pipeline.NewRunner(stages, a.clock, a.ids, a.logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	a.runner = runner
	return runner, nil
}

func (a *App) source() (scrape.Source, error) {
	tc := a.cfg.Telegram
	switch tc.Source {
	case config.SourceWebPreview:
		a.logger.Info("using web preview source", zap.String("base_url", tc.BaseURL))
		src, err := webpreview.New(webpreview.Config{
			BaseURL:   tc.BaseURL,
			UserAgent: tc.UserAgent,
			Timeout:   tc.RequestTimeout,
			Limiter:   ratelimit.New(ratelimit.Config{RPS: tc.RequestsPerSecond, Burst: 1}),
		}, a.logger.Named("webpreview"))
		if err != nil {
			return nil, fmt.Errorf("web preview source init failed: %w", err)
		}
		return src, nil
	default:
		a.logger.Info("using mtproto source", zap.String("session_file", tc.SessionFile))
		src, err := mtproto.New(mtproto.Config{
			AppID:       tc.APIID,
			AppHash:     tc.APIHash,
			Phone:       tc.Phone,
			Password:    tc.Password,
			SessionFile: tc.SessionFile,
		}, a.Prompt, a.logger.Named("mtproto"))
		if err != nil {
			return nil, fmt.Errorf("mtproto source init failed: %w", err)
		}
		return src, nil
	}
}

func (a *App) coordinator(ctx context.Context) (*scrape.Coordinator, error) {
	mirror, err := a.mirror(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	logger := a.logger.Named("coordinator")
	deps := scrape.Dependencies{
		Scraper:   scrape.NewScraper(scrape.NewMediaFetcher(a.logger.Named("media")), a.logger.Named("scraper")),
		Clock:     a.clock,
		Pauser:    a.clock,
		Publisher: publisher,
		IDs:       a.ids,
		Hasher:    sha256.New(),
		Logger:    logger,
	}
	// A typed nil would defeat the coordinator's nil check.
	if mirror != nil {
		deps.Mirror = mirror
	}
	coord, err := scrape.NewCoordinator(scrape.Config{
		Channels:     a.cfg.Telegram.Channels,
		Limit:        a.cfg.Telegram.MessageLimit,
		MessagesDir:  a.cfg.Paths.RawMessagesDir,
		ImagesDir:    a.cfg.Paths.RawImagesDir,
		ChannelDelay: a.cfg.Telegram.ChannelDelay,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("coordinator init failed: %w", err)
	}
	return coord, nil
}

func (a *App) mirror(ctx context.Context) (*archive.Mirror, error) {
	var blobs archive.BlobStore
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS archive mirror", zap.String("bucket", a.cfg.Storage.Bucket))
		if a.gcs == nil {
			client, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client init failed: %w", err)
			}
			a.gcs = client
		}
		store, err := gcsstorage.New(a.gcs, gcsstorage.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		blobs = store
	case config.BackendMemory:
		a.logger.Info("using in-memory archive mirror")
		blobs = memorystorage.NewBlobStore()
	case config.BackendLocal:
		a.logger.Info("using local archive mirror", zap.String("path", a.cfg.Storage.Local.BaseDir))
		store, err := localstorage.New(a.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = store
	default:
		return nil, nil
	}
	return archive.New(blobs, a.logger.Named("archive")), nil
}

func (a *App) publisher(ctx context.Context) (scrape.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no Pub/Sub topic configured, keeping run events in memory")
		return a.events, nil
	}
	if a.pubsubClient == nil {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.topic = client.Topic(a.cfg.PubSub.TopicName)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(gcppublisher.TopicAdapter{Topic: a.topic}, map[string]string{
		"source": a.cfg.Telegram.Source,
	}), nil
}

func (a *App) rawStore(ctx context.Context) (*pgstore.RawStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db := a.cfg.Database
	store, err := pgstore.NewRawStore(ctx, pgstore.RawStoreConfig{
		DSN:             db.ConnString(),
		Schema:          db.Schema,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("raw store init failed: %w", err)
	}
	a.logger.Info("raw store initialized", zap.String("schema", db.Schema))
	a.store = store
	return store, nil
}

// Close releases every client the App created.
func (a *App) Close() error {
	var errs []error
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if err := a.logger.Sync(); err != nil && !isSyncNoise(err) {
		errs = append(errs, fmt.Errorf("logger sync: %w", err))
	}
	return errors.Join(errs...)
}

// isSyncNoise filters the EINVAL/ENOTTY zap returns when syncing a terminal.
func isSyncNoise(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

var _ io.Closer = (*App)(nil)
