package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/config"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/pipeline"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
	localstorage "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/local"
	pgstore "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/postgres"
)

const previewPage = `<html><body>
<div class="tgme_widget_message" data-post="pharma/11">
 <div class="tgme_widget_message_text">amoxicillin in stock</div>
 <a class="tgme_widget_message_date"><time datetime="2024-06-01T09:00:00+00:00"></time></a>
</div>
<div class="tgme_widget_message" data-post="pharma/12">
 <a class="tgme_widget_message_photo_wrap" style="background-image:url('%s/file/12.jpg')"></a>
 <div class="tgme_widget_message_text">new arrivals</div>
 <a class="tgme_widget_message_date"><time datetime="2024-06-01T10:00:00+00:00"></time></a>
</div>
</body></html>`

func newPreview(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/s/pharma", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("before") != "" {
			_, _ = fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		_, _ = fmt.Fprintf(w, previewPage, srv.URL)
	})
	mux.HandleFunc("/file/12.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	root := t.TempDir()
	return config.Config{
		Telegram: config.TelegramConfig{
			Source:         config.SourceWebPreview,
			Channels:       []string{"https://t.me/pharma"},
			MessageLimit:   100,
			RequestTimeout: 5 * time.Second,
			BaseURL:        baseURL,
		},
		Paths: config.PathsConfig{
			RawMessagesDir: filepath.Join(root, "telegram_messages"),
			RawImagesDir:   filepath.Join(root, "telegram_images"),
		},
		Database: config.DatabaseConfig{DSN: "postgres://unused"},
		Storage: config.StorageConfig{
			Backend: config.BackendLocal,
			Local:   localstorage.Config{BaseDir: filepath.Join(root, "archive")},
		},
		Pipeline: config.PipelineConfig{
			Transform: pipeline.CommandConfig{Command: []string{"sh", "-c", "echo transformed"}},
		},
	}
}

func withMockStore(t *testing.T, a *App) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := pgstore.NewRawStoreWithPool(mock, "raw")
	require.NoError(t, err)
	a.store = store
	return mock
}

func TestScrapeWritesBatchAndMirrors(t *testing.T) {
	t.Parallel()

	srv := newPreview(t)
	cfg := testConfig(t, srv.URL)
	a := New(cfg, zap.NewNop())

	summary, err := a.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Channels, 1)
	report := summary.Channels[0]
	assert.Equal(t, scrape.OutcomeSucceeded, report.Outcome)
	assert.Equal(t, 2, report.Messages)
	assert.Equal(t, 1, report.MediaFiles)
	assert.NotEmpty(t, summary.RunID)
	assert.Len(t, report.Checksum, 64)

	raw, err := os.ReadFile(report.File)
	require.NoError(t, err)
	var batch []map[string]any
	require.NoError(t, json.Unmarshal(raw, &batch))
	require.Len(t, batch, 2)
	assert.EqualValues(t, 12, batch[0]["id"])
	assert.Equal(t, "2024-06-01T10:00:00.000000Z", batch[0]["date"])

	mirrored := filepath.Join(cfg.Storage.Local.BaseDir, "telegram_messages", report.Date, "pharma.json")
	assert.FileExists(t, mirrored)
	assert.FileExists(t, filepath.Join(cfg.Storage.Local.BaseDir, "telegram_images", report.Date, "pharma", "12.jpg"))
}

func TestScrapeKeepsEventsInMemoryWithoutTopic(t *testing.T) {
	t.Parallel()

	srv := newPreview(t)
	cfg := testConfig(t, srv.URL)
	cfg.Storage = config.StorageConfig{Backend: config.BackendMemory}
	a := New(cfg, zap.NewNop())

	summary, err := a.Scrape(context.Background())
	require.NoError(t, err)

	msgs := a.events.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "scrape-runs", msgs[0].Topic)
	event, ok := msgs[0].Payload.(scrape.RunEvent)
	require.True(t, ok)
	assert.Equal(t, summary.RunID, event.RunID)
	assert.Equal(t, "pharma", event.Channel)
	assert.Equal(t, 2, event.Messages)
	assert.NoDirExists(t, filepath.Join(filepath.Dir(cfg.Paths.RawMessagesDir), "archive"))
}

func TestMigrateRejectsOtherSchemas(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Database.Schema = "staging"
	a := New(cfg, zap.NewNop())

	_, err := a.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"staging"`)
	assert.Nil(t, a.store)
}

func TestScrapeRequiresCredentialsForMTProto(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Telegram.Source = config.SourceMTProto
	_, err := New(cfg, nil).Scrape(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.api_id")
}

func TestRunPipelineRunsStagesInOrder(t *testing.T) {
	t.Parallel()

	srv := newPreview(t)
	a := New(testConfig(t, srv.URL), zap.NewNop())
	mock := withMockStore(t, a)
	for range 4 {
		mock.ExpectExec(`CREATE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectBegin()
	for range 2 {
		mock.ExpectExec(`INSERT INTO raw\.telegram_messages`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	report, err := a.RunPipeline(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	names := make([]string, 0, len(report.Stages))
	statuses := make([]pipeline.Status, 0, len(report.Stages))
	for _, s := range report.Stages {
		names = append(names, s.Name)
		statuses = append(statuses, s.Status)
	}
	assert.Equal(t, []string{"scrape", "load", "transform", "enrich"}, names)
	assert.Equal(t, []pipeline.Status{
		pipeline.StatusSucceeded,
		pipeline.StatusSucceeded,
		pipeline.StatusSucceeded,
		pipeline.StatusSkipped,
	}, statuses)
	assert.True(t, report.Succeeded())

	last, ok := a.runner.Last()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestRunPipelineStopsAtLoadFailure(t *testing.T) {
	t.Parallel()

	srv := newPreview(t)
	a := New(testConfig(t, srv.URL), zap.NewNop())
	mock := withMockStore(t, a)
	mock.ExpectExec(`CREATE SCHEMA`).WillReturnError(fmt.Errorf("connection refused"))

	report, err := a.RunPipeline(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
	require.Len(t, report.Stages, 4)
	assert.Equal(t, pipeline.StatusFailed, report.Stages[1].Status)
	assert.Equal(t, pipeline.StatusNotRun, report.Stages[2].Status)
	assert.Equal(t, pipeline.StatusNotRun, report.Stages[3].Status)
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Database = config.DatabaseConfig{}
	_, err := New(cfg, nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}

func TestServeRequiresPort(t *testing.T) {
	t.Parallel()

	require.Error(t, New(testConfig(t, "http://127.0.0.1:1"), nil).Serve(context.Background()))
}
