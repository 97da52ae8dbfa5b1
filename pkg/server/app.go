package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PriceFeatures/internal/usecase"
	"PriceFeatures/pkg/config"
	xhttp "PriceFeatures/pkg/http"
	pkgkafka "PriceFeatures/pkg/kafka"
	applogger "PriceFeatures/pkg/logger"
	"PriceFeatures/pkg/queue"
)

// Closer releases one infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	svc         *usecase.EnrichmentService
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	collector *usecase.PriceCollector
	consumer  *pkgkafka.Consumer
	ticks     pkgkafka.MessageHandler
	queue     *queue.RedisQueue
	closers   []Closer
	checks    map[string]xhttp.HealthCheck

	stopRetention context.CancelFunc
}

type Option func(*App)

// WithCollector runs the live price collector. nil leaves it off.
func WithCollector(c *usecase.PriceCollector) Option {
	return func(a *App) { a.collector = c }
}

// WithConsumer consumes minute prices from Kafka with h.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.ticks = h
	}
}

func WithQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

// WithClosers registers clients closed last, in order.
func WithClosers(cs ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, cs...) }
}

// WithHealthCheck adds a /healthz check. A nil check is ignored.
func WithHealthCheck(name string, check xhttp.HealthCheck) Option {
	return func(a *App) {
		if check != nil {
			a.checks[name] = check
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, svc *usecase.EnrichmentService, h xhttp.Handler, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		cfg:         cfg,
		log:         l,
		svc:         svc,
		httpHandler: h,
		checks:      map[string]xhttp.HealthCheck{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.collector != nil {
		a.checks["collector"] = a.collector.Health
	}
	return a
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stop()
	return a.Shutdown(shutdownCtx)
}

// Start launches the queue, the Kafka consumer, the collector, the retention
// loop and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
		a.log.Info("job queue started", applogger.Int("workers", a.cfg.Redis.QueueJobs.Workers))
	}

	if a.consumer != nil && a.ticks != nil {
		a.consumer.RegisterHandler(a.ticks)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started",
			applogger.String("topic", a.ticks.Topic()),
			applogger.Strings("brokers", a.cfg.Kafka.Brokers))
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return fmt.Errorf("price collector: %w", err)
		}
		a.log.Info("price collector started", applogger.String("symbol", a.cfg.Finnhub.Symbol))
	}

	if a.cfg.Enrichment.Retention > 0 {
		rctx, stop := context.WithCancel(ctx)
		a.stopRetention = stop
		var pub queue.Publisher
		if a.queue != nil {
			pub = a.queue
		}
		go usecase.RunRetention(rctx, a.svc, pub, a.cfg.Enrichment.CleanupEvery, a.log)
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
	}
	for name, check := range a.checks {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, opts...)
	return a.httpServer.Start()
}

// Shutdown stops components in reverse start order and closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	var errs []error

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if a.stopRetention != nil {
		a.stopRetention()
	}
	if a.collector != nil && a.collector.State() != usecase.StateStopped {
		if err := a.collector.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("collector: %w", err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("job queue: %w", err))
		}
	}
	for _, c := range a.closers {
		if c.Close == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("shutdown finished with errors", applogger.Error(err))
	} else {
		a.log.Info("shutdown complete")
	}
	return err
}
