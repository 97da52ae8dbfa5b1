package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"PriceFeatures/internal/domain/repository"
	domsvc "PriceFeatures/internal/domain/service"
	"PriceFeatures/internal/handler/api"
	mid "PriceFeatures/internal/middleware"
	internalrepo "PriceFeatures/internal/repository"
	icache "PriceFeatures/internal/service/cache"
	"PriceFeatures/internal/service/finnhub"
	"PriceFeatures/internal/services/enrichment"
	"PriceFeatures/internal/services/features"
	"PriceFeatures/internal/services/forecast"
	"PriceFeatures/internal/usecase"
	pkgcache "PriceFeatures/pkg/cache"
	pkgch "PriceFeatures/pkg/clickhouse"
	"PriceFeatures/pkg/config"
	xhttp "PriceFeatures/pkg/http"
	pkgkafka "PriceFeatures/pkg/kafka"
	applogger "PriceFeatures/pkg/logger"
	"PriceFeatures/pkg/metrics"
	"PriceFeatures/pkg/queue"
	"PriceFeatures/pkg/server"
)

// ProvideLogger builds the application logger from the log section.
// Aggregated warn and error entries are shipped to Kafka when the collector
// is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "pricefeatures",
	})
	if err != nil {
		return nil, err
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideFeatureEngine maps the features section onto the engine config.
// Zero values fall back to the engine defaults.
func ProvideFeatureEngine(cfg *config.Config) (*features.Engineer, error) {
	f := cfg.Features
	return features.New(features.Config{
		Lags:             f.Lags,
		RollingWindows:   f.RollingWindows,
		RangeWindow:      f.RangeWindow,
		RSIPeriod:        f.RSIPeriod,
		MACDFast:         f.MACDFast,
		MACDSlow:         f.MACDSlow,
		MACDSignal:       f.MACDSignal,
		MACDWindow:       f.MACDWindow,
		MACDSignalWindow: f.MACDSignalWindow,
		BollingerPeriod:  f.BollingerPeriod,
		BollingerK:       f.BollingerK,
		ATRPeriod:        f.ATRPeriod,
		StochK:           f.StochK,
		StochD:           f.StochD,
		ChangeHorizons:   f.ChangeHorizons,
		VolatilityWindow: f.VolatilityWindow,
		MomentumHorizons: f.MomentumHorizons,
		TargetHorizon:    f.TargetHorizon,
		Timezone:         f.Timezone,
		NormalizeMin:     f.NormalizeMin,
		NormalizeMax:     f.NormalizeMax,
	})
}

func ProvideCoordinator(engine *features.Engineer, cfg *config.Config) (*enrichment.Coordinator, error) {
	return enrichment.New(engine,
		enrichment.WithMinHistory(cfg.Enrichment.MinHistory),
		enrichment.WithContextSize(cfg.Enrichment.ContextSize),
	)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

func initStore(name string, init func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := init(ctx); err != nil {
		return fmt.Errorf("%s schema: %w", name, err)
	}
	return nil
}

// ProvidePriceStore returns the ClickHouse price table, or an in-memory
// store when ClickHouse is disabled.
func ProvidePriceStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.PriceStore, error) {
	if ch == nil {
		l.Warn("clickhouse disabled, price history kept in memory")
		return internalrepo.NewMemoryPriceStore(), nil
	}
	s := internalrepo.NewCHPriceStore(ch, cfg.ClickHouse.PriceTable, l)
	if err := initStore("price", s.Init); err != nil {
		return nil, err
	}
	return s, nil
}

func ProvideFeatureStore(ch *pkgch.Client, engine *features.Engineer, cfg *config.Config, l *applogger.Logger) (repository.FeatureStore, error) {
	if ch == nil {
		return internalrepo.NewMemoryFeatureStore(engine.Schema()), nil
	}
	s := internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.FeatureTable, engine.Schema(), cfg.Enrichment.BatchSize, l)
	if err := initStore("feature", s.Init); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideFeaturePublisher publishes to the features topic when Kafka is on.
func ProvideFeaturePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Features)
}

// ProvideRedisClient connects to Redis, or returns nil when disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client, err := pkgcache.NewRedisClient(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 4*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return client, nil
}

// ProvideCache layers an in-process cache over Redis, or uses memory only.
func ProvideCache(client *redis.Client, cfg *config.Config) pkgcache.Service {
	if client == nil {
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(1024),
			pkgcache.WithMemoryCleanup(cfg.Enrichment.CacheTTL),
		)
	}
	return pkgcache.NewLayeredCache(
		pkgcache.NewRedisCache(client, cfg.Redis.Prefix),
		pkgcache.WithLayeredMemory(1024, 10*time.Second),
	)
}

func ProvideLatestCache(svc pkgcache.Service, engine *features.Engineer, cfg *config.Config) *icache.LatestFeatures {
	return icache.NewLatestFeatures(svc, engine.Schema(), cfg.Enrichment.CacheTTL)
}

func ProvideEnrichmentService(
	coord *enrichment.Coordinator,
	prices repository.PriceStore,
	store repository.FeatureStore,
	pub repository.Publisher,
	latest *icache.LatestFeatures,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.EnrichmentService {
	return usecase.NewEnrichmentService(coord, prices, store, m,
		usecase.WithPublisher(pub),
		usecase.WithLatestCache(latest),
		usecase.WithBatchSize(cfg.Enrichment.BatchSize),
		usecase.WithRetention(cfg.Enrichment.Retention),
		usecase.WithServiceLogger(l.With(applogger.String("component", "enrichment"))),
	)
}

// ProvideJobQueue builds the Redis job queue with the backfill and cleanup
// jobs registered, or nil without Redis.
func ProvideJobQueue(client *redis.Client, svc *usecase.EnrichmentService, locks pkgcache.Service, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	if client == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Redis.QueueJobs.Workers,
		RetryLimit: cfg.Redis.QueueJobs.RetryLimit,
		RetryDelay: cfg.Redis.QueueJobs.RetryDelay,
	}, client, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJobs(
		usecase.NewBackfillJob(svc, locks, l),
		usecase.NewCleanupJob(svc),
	)
	return q
}

// ProvideKafkaConsumer creates the price ticks consumer, or nil when Kafka is
// disabled. One worker keeps minute prices in order.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerStartOffset(c.StartOffset),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.LoggingHook{Log: l, Slow: c.SlowMessage},
	))
	return consumer, nil
}

func ProvidePriceTicksHandler(cfg *config.Config, svc *usecase.EnrichmentService, m repository.Metrics, l *applogger.Logger) *usecase.PriceTicksHandler {
	return usecase.NewPriceTicksHandler(cfg.Kafka.Topics.Prices, cfg.Enrichment.Source, svc, m, l)
}

// ProvidePriceCollector wires the Finnhub stream through the realtime
// pipeline into the minute sampler, or returns nil when disabled.
func ProvidePriceCollector(cfg *config.Config, svc *usecase.EnrichmentService, m repository.Metrics, l *applogger.Logger) *usecase.PriceCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	cl := l.With(applogger.String("component", "collector"))
	stream := finnhub.New(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, []string{cfg.Finnhub.Symbol},
		finnhub.WithLogger(cl),
		finnhub.WithTimings(cfg.Finnhub.ReconnectDelay, cfg.Finnhub.PingInterval),
	)
	sampler := usecase.NewMinuteSampler(svc, cfg.Enrichment.Source, m, cl)
	pipe := mid.NewRealtimePipeline(sampler, m,
		mid.WithBufferSize(2000),
		mid.WithMaxDelay(2*time.Minute),
		mid.WithPipelineLogger(cl),
	)
	return usecase.NewPriceCollector(stream, sampler, pipe, m, cl)
}

// ProvideForecaster returns the model-serving client, or nil when disabled.
func ProvideForecaster(cfg *config.Config, engine *features.Engineer) domsvc.Forecaster {
	if !cfg.Forecast.Enabled {
		return nil
	}
	base := forecast.NewHTTPServiceBase(cfg.Forecast.URL, cfg.Forecast.Timeout, cfg.Forecast.Retries)
	return forecast.NewHTTPForecaster(base, engine.Config().TargetHorizon)
}

func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.EnrichmentService,
	q *queue.RedisQueue,
	fc domsvc.Forecaster,
) xhttp.Handler {
	opts := []api.HandlerOption{api.WithRateLimit(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)}
	if q != nil {
		opts = append(opts, api.WithJobQueue(q))
	}
	if fc != nil {
		opts = append(opts, api.WithForecaster(fc))
	}
	return api.NewFeaturesEchoHandler(l.With(applogger.String("component", "api")), svc, opts...)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.EnrichmentService,
	handler xhttp.Handler,
	collector *usecase.PriceCollector,
	consumer *pkgkafka.Consumer,
	ticks *usecase.PriceTicksHandler,
	q *queue.RedisQueue,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	rc *redis.Client,
	c pkgcache.Service,
) *server.App {
	return server.New(cfg, l, svc, handler,
		server.WithCollector(collector),
		server.WithConsumer(consumer, ticks),
		server.WithQueue(q),
		server.WithClosers(clientClosers(l, ch, producer, rc, c)...),
		server.WithHealthCheck("clickhouse", healthIf(ch != nil, func(ctx context.Context) error { return ch.Health(ctx) })),
	)
}

// clientClosers lists the shared clients in close order. The log collector
// goes first so its last flush still has a producer.
func clientClosers(l *applogger.Logger, ch *pkgch.Client, producer *pkgkafka.Producer, rc *redis.Client, c pkgcache.Service) []server.Closer {
	return []server.Closer{
		{Name: "log collector", Close: func() error { l.RemoveCollector(); return nil }},
		{Name: "kafka producer", Close: closeIf(producer != nil, func() error { return producer.Close() })},
		{Name: "clickhouse", Close: closeIf(ch != nil, func() error { return ch.Close() })},
		{Name: "cache", Close: c.Close},
		{Name: "redis", Close: closeIf(rc != nil, func() error { return rc.Close() })},
	}
}

func closeIf(ok bool, fn func() error) func() error {
	if !ok {
		return func() error { return nil }
	}
	return fn
}

func healthIf(ok bool, fn func(context.Context) error) func(context.Context) error {
	if !ok {
		return nil
	}
	return fn
}

// Toolkit is the enrichment service for one-shot commands.
type Toolkit struct {
	Service *usecase.EnrichmentService
	Log     *applogger.Logger
}

// ProvideToolkit returns the toolkit and a cleanup that flushes and closes
// the clients it uses.
func ProvideToolkit(svc *usecase.EnrichmentService, l *applogger.Logger, ch *pkgch.Client, producer *pkgkafka.Producer, rc *redis.Client, c pkgcache.Service) (*Toolkit, func()) {
	closers := clientClosers(l, ch, producer, rc, c)
	cleanup := func() {
		for _, cl := range closers {
			if err := cl.Close(); err != nil {
				l.Warn("close failed", applogger.String("client", cl.Name), applogger.Error(err))
			}
		}
	}
	return &Toolkit{Service: svc, Log: l}, cleanup
}
