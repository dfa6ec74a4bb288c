package catalog

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/feed"
)

const progressEvery = 10_000

// ErrTooManyFailures aborts a run whose persist failures exceeded the
// configured limit.
var ErrTooManyFailures = errors.New("too many persist failures")

// Stats summarizes one ingestion run.
type Stats struct {
	Rows       int
	Invalid    int
	Duplicates int
	Persisted  int
	Failed     int
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithTrackers sets the factory creating each run's dedup tracker.
func WithTrackers(f TrackerFactory) Option {
	return func(i *Ingester) { i.newTracker = f }
}

// WithMaxPersistFailures aborts a run once more than n rows failed to
// persist. Zero means no limit.
func WithMaxPersistFailures(n int) Option {
	return func(i *Ingester) { i.maxFailures = n }
}

// WithMeterProvider sets the meter provider for row counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(i *Ingester) { i.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for run spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(i *Ingester) { i.tracerProvider = tp }
}

// Ingester streams a feed through the pipeline into the store.
//
// Rows are processed one at a time in input order. A persist failure is
// isolated to its row: it is logged and counted and the stream continues.
// The run aborts on a decode error, on context cancellation, or when the
// failure limit is exceeded.
type Ingester struct {
	sink        *Sink
	newTracker  TrackerFactory
	maxFailures int

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	rows           metric.Int64Counter
}

// NewIngester returns an Ingester writing to repo.
func NewIngester(repo product.Repository, opts ...Option) (*Ingester, error) {
	i := &Ingester{
		sink:           NewSink(repo),
		newTracker:     ExactTrackers,
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(i)
	}

	rows, err := i.meterProvider.Meter("catalog").Int64Counter("catalog.ingest.rows",
		metric.WithDescription("Feed rows processed by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rows counter")
	}
	i.rows = rows
	i.tracer = i.tracerProvider.Tracer("catalog")

	return i, nil
}

// Ingest runs one ingestion over r with a fresh dedup tracker.
func (i *Ingester) Ingest(ctx context.Context, r io.Reader) (Stats, error) {
	ctx, span := i.tracer.Start(ctx, "catalog.Ingest")
	defer span.End()

	lg := zctx.From(ctx)
	seen := i.newTracker()

	var stats Stats
	for row, err := range feed.NewDecoder(r).Rows() {
		if err != nil {
			span.RecordError(err)
			return stats, errors.Wrap(err, "decode feed")
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Rows++
		outcome := i.process(ctx, row, seen, &stats)
		i.rows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))

		if outcome == OutcomeFailed {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if i.maxFailures > 0 && stats.Failed > i.maxFailures {
				return stats, errors.Wrapf(ErrTooManyFailures, "%d rows failed", stats.Failed)
			}
		}

		if stats.Rows%progressEvery == 0 {
			lg.Info("Ingest progress",
				zap.Int("rows", stats.Rows),
				zap.Int("persisted", stats.Persisted),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("catalog.rows", stats.Rows),
		attribute.Int("catalog.persisted", stats.Persisted),
	)
	lg.Info("Ingest complete",
		zap.Int("rows", stats.Rows),
		zap.Int("persisted", stats.Persisted),
		zap.Int("invalid", stats.Invalid),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (i *Ingester) process(ctx context.Context, row feed.Row, seen Tracker, stats *Stats) Outcome {
	p, outcome := Transform(row, seen)
	switch outcome {
	case OutcomeInvalid:
		stats.Invalid++
		return outcome
	case OutcomeDuplicate:
		stats.Duplicates++
		return outcome
	}

	if _, err := i.sink.Persist(ctx, p); err != nil {
		stats.Failed++
		zctx.From(ctx).Warn("Persist failed", zap.Error(err))
		return OutcomeFailed
	}
	stats.Persisted++
	return OutcomePersisted
}
