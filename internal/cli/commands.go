package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrape every configured channel into the raw data lake",
		Long: `Scrapes each configured channel in order, downloading media and writing
one JSON batch per channel under <raw_messages_dir>/<date>/. Rate-limited or
failing channels are skipped; the run continues with the next channel.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := instance.Scrape(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
				instance.Logger().Warn("print summary failed", zap.Error(perr))
			}
			return err
		},
	}
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load scraped batch files into the raw Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := instance.Load(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				instance.Logger().Warn("print report failed", zap.Error(perr))
			}
			return err
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := instance.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if applied {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			} else {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			return err
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run scrape, load, transform and enrich in order",
		Long: `Runs the full pipeline once. Stages execute strictly in order and the
run stops at the first failing stage. Transform and enrich invoke the
configured external commands and are skipped when none is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := instance.RunPipeline(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				instance.Logger().Warn("print report failed", zap.Error(perr))
			}
			return err
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, readiness and metrics endpoints until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return instance.Serve(cmd.Context())
		},
	}
}
