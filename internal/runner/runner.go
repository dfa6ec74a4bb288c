// Package runner wires the ingestion and enrichment phases into one run and
// schedules it.
package runner

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalog-feed/internal/catalog"
	"github.com/xenking/catalog-feed/internal/enrich"
	"github.com/xenking/catalog-feed/internal/feed"
)

// Ingester loads a feed into the store.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader) (catalog.Stats, error)
}

// Enricher enriches one batch of stored products.
type Enricher interface {
	Run(ctx context.Context) (enrich.Result, error)
}

// Report summarizes a completed run.
type Report struct {
	Ingest catalog.Stats
	Enrich enrich.Result
}

// Runner executes ingestion followed by enrichment. At most one run is in
// progress at a time; overlapping calls fail with ErrRunInProgress.
type Runner struct {
	feedPath string
	ingester Ingester
	enricher Enricher
	lock     Locker
	open     func(path string) (io.ReadCloser, error)
}

// New creates a Runner reading the feed at feedPath. A nil lock guards runs
// within the process only.
func New(feedPath string, ingester Ingester, enricher Enricher, lock Locker) *Runner {
	if lock == nil {
		lock = NewLocalLock()
	}
	return &Runner{
		feedPath: feedPath,
		ingester: ingester,
		enricher: enricher,
		lock:     lock,
		open:     feed.Open,
	}
}

// Run ingests the configured feed and then enriches one batch. Enrichment is
// skipped when ingestion fails.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	release, err := r.lock.TryLock(ctx)
	if err != nil {
		return Report{}, err
	}
	defer release()

	lg := zctx.From(ctx).With(zap.String("feed", r.feedPath))
	ctx = zctx.Base(ctx, lg)

	var report Report
	report.Ingest, err = r.ingest(ctx)
	if err != nil {
		return report, errors.Wrap(err, "ingest")
	}

	report.Enrich, err = r.enricher.Run(ctx)
	if err != nil {
		return report, errors.Wrap(err, "enrich")
	}

	lg.Info("Run complete",
		zap.Int("persisted", report.Ingest.Persisted),
		zap.Int("enriched", report.Enrich.Enriched),
	)
	return report, nil
}

// Ingest runs only the ingestion phase under the run lock.
func (r *Runner) Ingest(ctx context.Context) (catalog.Stats, error) {
	release, err := r.lock.TryLock(ctx)
	if err != nil {
		return catalog.Stats{}, err
	}
	defer release()
	return r.ingest(ctx)
}

// Enrich runs only the enrichment phase under the run lock.
func (r *Runner) Enrich(ctx context.Context) (enrich.Result, error) {
	release, err := r.lock.TryLock(ctx)
	if err != nil {
		return enrich.Result{}, err
	}
	defer release()
	return r.enricher.Run(ctx)
}

func (r *Runner) ingest(ctx context.Context) (catalog.Stats, error) {
	f, err := r.open(r.feedPath)
	if err != nil {
		return catalog.Stats{}, err
	}
	defer func() { _ = f.Close() }()

	return r.ingester.Ingest(ctx, f)
}
