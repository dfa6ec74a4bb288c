package enrich

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/catalog-feed/internal/domain/product"
)

// DefaultBatchSize bounds the candidates selected per run.
const DefaultBatchSize = 10

// Result summarizes one enrichment run.
type Result struct {
	Selected int
	Enriched int
	// Skipped counts candidates enriched or removed concurrently.
	Skipped int
	Failed  int
}

// JobConfig configures a Job.
type JobConfig struct {
	BatchSize int
	// FailFast stops the run at the first failed candidate. When false a
	// failure is logged and the remaining candidates are still processed.
	FailFast       bool
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Job selects un-enriched products, generates new descriptions and applies
// them under the completion flag.
type Job struct {
	repo      product.Repository
	enhancer  Enhancer
	batchSize int
	failFast  bool

	tracer   trace.Tracer
	products metric.Int64Counter
}

// NewJob creates a Job.
func NewJob(repo product.Repository, enhancer Enhancer, cfg JobConfig) (*Job, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	counter, err := cfg.MeterProvider.Meter("enrich").Int64Counter("catalog.enrich.products",
		metric.WithDescription("Enrichment candidates by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create products counter")
	}

	return &Job{
		repo:      repo,
		enhancer:  enhancer,
		batchSize: cfg.BatchSize,
		failFast:  cfg.FailFast,
		tracer:    cfg.TracerProvider.Tracer("enrich"),
		products:  counter,
	}, nil
}

// Run enriches at most one batch of candidates. Candidates are processed in
// the order the store returns them, which is unspecified.
func (j *Job) Run(ctx context.Context) (Result, error) {
	ctx, span := j.tracer.Start(ctx, "enrich.Run")
	defer span.End()

	lg := zctx.From(ctx)

	candidates, err := j.repo.ListUnenriched(ctx, j.batchSize)
	if err != nil {
		return Result{}, errors.Wrap(err, "select candidates")
	}

	res := Result{Selected: len(candidates)}
	if len(candidates) == 0 {
		lg.Info("No products to enrich")
		return res, nil
	}

	var firstErr error
	for _, p := range candidates {
		err := j.enrichOne(ctx, p)
		switch {
		case err == nil:
			res.Enriched++
			j.record(ctx, "enriched")
		case errors.Is(err, product.ErrNotFound):
			res.Skipped++
			j.record(ctx, "skipped")
			lg.Info("Product no longer pending enrichment", zap.String("product_id", p.ID))
		default:
			res.Failed++
			j.record(ctx, "failed")
			if j.failFast {
				span.RecordError(err)
				return res, err
			}
			lg.Warn("Enrichment failed", zap.String("product_id", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	lg.Info("Enrichment complete",
		zap.Int("selected", res.Selected),
		zap.Int("enriched", res.Enriched),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	if firstErr != nil {
		span.RecordError(firstErr)
		return res, errors.Wrapf(firstErr, "%d of %d candidates failed", res.Failed, res.Selected)
	}
	return res, nil
}

func (j *Job) enrichOne(ctx context.Context, p product.Product) error {
	text, err := j.enhancer.Enhance(ctx, p.Name, p.Description, p.CategoryName)
	if err != nil {
		return errors.Wrapf(err, "enhance product %s", p.ID)
	}
	if err := j.repo.ApplyEnrichment(ctx, p.ID, p.FirstVariantID(), text); err != nil {
		return errors.Wrapf(err, "apply enrichment to %s", p.ID)
	}
	return nil
}

func (j *Job) record(ctx context.Context, outcome string) {
	j.products.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
