package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/catalog-feed/internal/catalog"
	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/enrich"
	"github.com/xenking/catalog-feed/internal/runner"
	"github.com/xenking/catalog-feed/internal/storage/badger"
	"github.com/xenking/catalog-feed/internal/storage/postgres"
	"github.com/xenking/catalog-feed/pkg/health"
)

// Telemetry supplies the providers used by the pipeline.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Components are the wired pipeline dependencies shared by every binary.
type Components struct {
	Products product.Repository
	Runner   *runner.Runner
	// StorePing reports store reachability for readiness.
	StorePing health.CheckFunc

	closers []func()
}

// Close releases the components in reverse creation order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build opens the store, the run lock and the enhancement backend and wires
// the runner. The caller must Close the result.
func Build(ctx context.Context, lg *zap.Logger, cfg *Config, t Telemetry) (_ *Components, rerr error) {
	c := &Components{}
	defer func() {
		if rerr != nil {
			c.Close()
		}
	}()

	if err := c.openStore(ctx, lg, cfg.Storage); err != nil {
		return nil, err
	}

	enhancer, err := newEnhancer(cfg.Enrich)
	if err != nil {
		return nil, err
	}

	trackers := catalog.ExactTrackers
	if cfg.Feed.Dedup == DedupBloom {
		trackers = catalog.BloomTrackers(cfg.Feed.BloomCapacity, cfg.Feed.BloomFPRate)
	}
	ingester, err := catalog.NewIngester(c.Products,
		catalog.WithTrackers(trackers),
		catalog.WithMaxPersistFailures(cfg.Feed.MaxPersistFailures),
		catalog.WithMeterProvider(t.MeterProvider()),
		catalog.WithTracerProvider(t.TracerProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create ingester")
	}

	job, err := enrich.NewJob(c.Products, enhancer, enrich.JobConfig{
		BatchSize:      cfg.Enrich.BatchSize,
		FailFast:       cfg.Enrich.FailFast,
		MeterProvider:  t.MeterProvider(),
		TracerProvider: t.TracerProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create enrichment job")
	}

	lock, err := c.openLock(ctx, cfg.Lock)
	if err != nil {
		return nil, err
	}

	c.Runner = runner.New(cfg.Feed.Path, ingester, job, lock)
	lg.Info("Components ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("enhancer", cfg.Enrich.Provider),
		zap.String("dedup", cfg.Feed.Dedup),
		zap.Bool("distributed_lock", cfg.Lock.RedisAddr != ""),
	)
	return c, nil
}

func (c *Components) openStore(ctx context.Context, lg *zap.Logger, cfg StorageConfig) error {
	switch cfg.Driver {
	case DriverBadger:
		store, err := badger.Open(cfg.BadgerDir, lg)
		if err != nil {
			return errors.Wrap(err, "open badger store")
		}
		c.closers = append(c.closers, func() { _ = store.Close() })
		c.Products = store
		c.StorePing = health.PingCheck(store)
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		c.closers = append(c.closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return err
		}
		c.Products = postgres.NewProductRepository(pool)
		c.StorePing = health.PingCheck(pool)
	}
	return nil
}

func (c *Components) openLock(ctx context.Context, cfg LockConfig) (runner.Locker, error) {
	if cfg.RedisAddr == "" {
		return runner.NewLocalLock(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		DialTimeout: 5 * time.Second,
	})
	c.closers = append(c.closers, func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return runner.NewRedisLock(client, cfg.Key, cfg.TTL), nil
}

func newEnhancer(cfg EnrichConfig) (enrich.Enhancer, error) {
	if cfg.Provider == ProviderOpenAI {
		lc, err := enrich.NewLangChain(enrich.LangChainConfig{
			BaseURL:     cfg.URL,
			Token:       cfg.Token,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create langchain enhancer")
		}
		return lc, nil
	}
	client, err := enrich.NewCompletionClient(enrich.CompletionConfig{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create completion client")
	}
	return client, nil
}
