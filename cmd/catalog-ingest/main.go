// Command catalog-ingest runs the catalog pipeline once from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appkg "github.com/xenking/catalog-feed/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "catalog-ingest",
		Usage: "Load the catalog feed and enrich product descriptions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Logging level (debug, info, warn, error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:    "feed",
				Aliases: []string{"f"},
				Usage:   "Feed file; overrides CATALOG_FEED_PATH",
			},
			&cli.StringFlag{
				Name:  "storage",
				Usage: "Store driver (postgres, badger); overrides CATALOG_STORAGE_DRIVER",
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "PostgreSQL connection URL",
			},
			&cli.StringFlag{
				Name:  "badger-dir",
				Usage: "Badger data directory",
			},
			&cli.StringFlag{
				Name:  "dedup",
				Usage: "Dedup tracker (exact, bloom)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Load the feed into the store",
				Action: withPipeline(ingestCommand),
			},
			{
				Name:   "enrich",
				Usage:  "Enrich one batch of stored products",
				Action: withPipeline(enrichCommand),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Products enriched in this run",
					},
					&cli.BoolFlag{
						Name:  "continue-on-error",
						Usage: "Keep enriching after a failed product",
					},
				},
			},
			{
				Name:   "run",
				Usage:  "Ingest the feed, then enrich one batch",
				Action: withPipeline(runCommand),
			},
		},
	}
}

type pipelineFunc func(ctx context.Context, lg *zap.Logger, comp *appkg.Components) error

// withPipeline loads configuration, applies flag overrides and builds the
// components before calling fn.
func withPipeline(fn pipelineFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		lg, err := newLogger(c.String("log-level"))
		if err != nil {
			return err
		}
		defer func() { _ = lg.Sync() }()

		cfg, err := appkg.LoadEnvConfig()
		if err != nil {
			return err
		}
		applyFlags(c, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := zctx.Base(c.Context, lg)
		comp, err := appkg.Build(ctx, lg, cfg, appkg.GlobalTelemetry())
		if err != nil {
			return errors.Wrap(err, "build pipeline")
		}
		defer comp.Close()

		return fn(ctx, lg, comp)
	}
}

func applyFlags(c *cli.Context, cfg *appkg.Config) {
	override := func(dst *string, name string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	override(&cfg.Feed.Path, "feed")
	override(&cfg.Feed.Dedup, "dedup")
	override(&cfg.Storage.Driver, "storage")
	override(&cfg.Storage.DatabaseURL, "database-url")
	override(&cfg.Storage.BadgerDir, "badger-dir")

	if c.IsSet("batch-size") {
		cfg.Enrich.BatchSize = c.Int("batch-size")
	}
	if c.Bool("continue-on-error") {
		cfg.Enrich.FailFast = false
	}
}

func ingestCommand(ctx context.Context, lg *zap.Logger, comp *appkg.Components) error {
	stats, err := comp.Runner.Ingest(ctx)
	if err != nil {
		return err
	}
	lg.Info("Ingest finished",
		zap.Int("rows", stats.Rows),
		zap.Int("persisted", stats.Persisted),
		zap.Int("invalid", stats.Invalid),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed", stats.Failed),
	)
	return nil
}

func enrichCommand(ctx context.Context, lg *zap.Logger, comp *appkg.Components) error {
	res, err := comp.Runner.Enrich(ctx)
	lg.Info("Enrichment finished",
		zap.Int("selected", res.Selected),
		zap.Int("enriched", res.Enriched),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return err
}

func runCommand(ctx context.Context, lg *zap.Logger, comp *appkg.Components) error {
	report, err := comp.Runner.Run(ctx)
	if err != nil {
		return err
	}
	lg.Info("Run finished",
		zap.Int("persisted", report.Ingest.Persisted),
		zap.Int("enriched", report.Enrich.Enriched),
	)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	lg, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return lg, nil
}
