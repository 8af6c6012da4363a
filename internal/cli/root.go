// Package cli defines the tgpipeline commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/app"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/config"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/load"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/logging"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/pipeline"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

// App is what the commands need from the application container.
type App interface {
	Scrape(ctx context.Context) (scrape.Summary, error)
	Load(ctx context.Context) (load.Report, error)
	Migrate(ctx context.Context) (bool, error)
	RunPipeline(ctx context.Context) (pipeline.Report, error)
	Serve(ctx context.Context) error
	Logger() *zap.Logger
	Close() error
}

// Factory builds an App from loaded configuration.
type Factory func(cfg config.Config, logger *zap.Logger) (App, error)

// DefaultFactory builds the real application.
func DefaultFactory(cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(cfg, logger), nil
}

type appKeyType struct{}

type root struct {
	cfgFile string
	factory Factory
	app     App
}

// NewRootCmd creates the root command. PersistentPreRunE loads config and
// builds the App; subcommands read it from the context.
func NewRootCmd(factory Factory) *cobra.Command {
	r := &root{factory: factory}
	cmd := &cobra.Command{
		Use:   "tgpipeline",
		Short: "Scrape Telegram channels into a data lake and load them into Postgres.",
		Long: `tgpipeline collects recent messages and media from public Telegram
channels into dated JSON files, then loads them into the raw schema of a
Postgres warehouse where downstream transformation and enrichment run.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(r.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.Build(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			instance, err := r.factory(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			r.app = instance
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, instance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&r.cfgFile, "config", "", "config file (YAML)")
	cmd.AddCommand(
		newScrapeCmd(),
		newLoadCmd(),
		newMigrateCmd(),
		newRunCmd(),
		newServeCmd(),
	)
	return withCloser(cmd, r)
}

// withCloser wraps every subcommand so the App is closed even when RunE fails.
func withCloser(cmd *cobra.Command, r *root) *cobra.Command {
	for _, sub := range cmd.Commands() {
		run := sub.RunE
		sub.RunE = func(c *cobra.Command, args []string) error {
			err := run(c, args)
			if r.app != nil {
				if cerr := r.app.Close(); cerr != nil {
					r.app.Logger().Warn("application close failed", zap.Error(cerr))
				}
			}
			return err
		}
	}
	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(DefaultFactory).ExecuteContext(ctx)
}

func resolveApp(ctx context.Context) (App, error) {
	instance, ok := ctx.Value(appKeyType{}).(App)
	if !ok || instance == nil {
		return nil, errors.New("application not initialized")
	}
	return instance, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
