// Package app wires the catalog services together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-feed/api"
	"github.com/xenking/catalog-feed/internal/handler"
	"github.com/xenking/catalog-feed/internal/runner"
	"github.com/xenking/catalog-feed/pkg/health"
	"github.com/xenking/catalog-feed/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the scheduler, and
// handles graceful shutdown. It is the single wiring point for the API
// process.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	comp, err := Build(ctx, lg, cfg, m)
	if err != nil {
		return err
	}
	defer comp.Close()

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    cfg.Storage.Driver,
		Probe:   health.Readiness,
		Timeout: 5 * time.Second,
		Func:    comp.StorePing,
	})
	healthSvc.Register(health.Check{
		Name:  "goroutines",
		Probe: health.Liveness,
		Func:  health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// The trigger endpoint answers after the whole run.
		WriteTimeout:   30 * time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        NewMux(zctx.From(ctx), healthSvc, handler.NewHandler(comp.Products, comp.Runner)),
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Schedule != "" {
		sched, err := runner.NewScheduler(cfg.Schedule, func(ctx context.Context) error {
			_, err := comp.Runner.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// NewMux mounts the health endpoints, the API description and the product
// API behind the middleware chain.
func NewMux(lg *zap.Logger, h *health.Health, products *handler.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", h.Handler(health.Liveness))
	mux.HandleFunc("GET /readyz", h.Handler(health.Readiness))
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPI)
	products.Register(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.LogRequests(),
	)
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPI)
}

type globalTelemetry struct{}

func (globalTelemetry) TracerProvider() trace.TracerProvider { return otel.GetTracerProvider() }
func (globalTelemetry) MeterProvider() metric.MeterProvider  { return otel.GetMeterProvider() }

// GlobalTelemetry uses the global OpenTelemetry providers.
func GlobalTelemetry() Telemetry {
	return globalTelemetry{}
}
