package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "FinShock/internal/domain/repository"
	domsvc "FinShock/internal/domain/service"
	"FinShock/internal/handler/api"
	"FinShock/internal/handler/ws"
	internalrepo "FinShock/internal/repository"
	"FinShock/internal/service/ratelimit"
	"FinShock/internal/services/analytics"
	"FinShock/internal/services/shock"
	"FinShock/internal/usecase"
	"FinShock/pkg/cache"
	pkgch "FinShock/pkg/clickhouse"
	"FinShock/pkg/config"
	xhttp "FinShock/pkg/http"
	"FinShock/pkg/http/middleware"
	pkgkafka "FinShock/pkg/kafka"
	applogger "FinShock/pkg/logger"
	"FinShock/pkg/metrics"
	"FinShock/pkg/server"
)

// Optional infrastructure (Kafka, ClickHouse, Redis, feed) is provided as nil
// when disabled; consumers of these providers check for nil.

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging.Config)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates the Prometheus recorder on the default registry and
// points the Kafka client metrics at the same registry.
func ProvideMetrics() *metrics.Recorder {
	pkgkafka.SetMetricsRegisterer(prometheus.DefaultRegisterer)
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// LogShipping marks that the error digest collector has been attached.
type LogShipping bool

// ProvideLogShipping attaches the error digest collector to l when enabled.
func ProvideLogShipping(cfg *config.Config, l *applogger.Logger, producer *pkgkafka.Producer) LogShipping {
	c := cfg.Logging.Collector
	if !c.Enabled || producer == nil {
		return false
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   c.Interval,
		CountThreshold: c.Threshold,
		Topic:          c.Topic,
		Service:        "finshock",
		Publisher:      producer,
	})
	return true
}

// ProvideCache creates Redis behind an in-process L1, or the L1 alone when
// Redis is disabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, error) {
	ttl := cfg.Analytics.CacheTTL.Anomaly
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Redis.L1Size),
			cache.WithMemoryDefaultTTL(ttl),
		), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
		cache.WithRedisPingTimeout(cfg.Redis.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Redis.L1Size),
		cache.WithLayeredMemoryTTL(ttl),
	), nil
}

// ProvideResultCache wraps the cache service for detector output.
func ProvideResultCache(c cache.Service, cfg *config.Config, l *applogger.Logger) domrepo.ResultCache {
	return internalrepo.NewCachedResults(c, cfg.Analytics.CacheTTL.Anomaly, l)
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(pkgch.Config{
		Host:               ch.Host,
		Port:               ch.Port,
		Database:           ch.Database,
		User:               ch.User,
		Password:           ch.Password,
		UseHTTP:            ch.UseHTTP,
		AsyncInsert:        ch.AsyncInsert,
		WaitForAsyncInsert: ch.WaitForAsync,
		DialTimeout:        ch.DialTimeout,
		ReadTimeout:        ch.ReadTimeout,
		MaxExecutionTime:   ch.MaxExecutionTime,
		MaxOpenConns:       ch.MaxOpenConns,
		MaxIdleConns:       ch.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideAnomalyStore creates the ClickHouse anomaly store and its schema, or
// a noop store when ClickHouse is disabled.
func ProvideAnomalyStore(ch *pkgch.Client, l *applogger.Logger) (domrepo.AnomalyStore, error) {
	if ch == nil {
		return internalrepo.NoopAnomalyStore{}, nil
	}
	store := internalrepo.NewCHAnomalyStore(ch, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideFeatureStore reads candles from ClickHouse. Without ClickHouse the
// candle endpoint answers 503.
func ProvideFeatureStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) domrepo.FeatureStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.CandleTable1s, cfg.ClickHouse.CandleTable1m, l)
}

// ProvideDetector selects the in-process or remote detector.
func ProvideDetector(cfg *config.Config) (domsvc.AnomalyDetector, error) {
	switch cfg.Analytics.Mode {
	case "local":
		return analytics.NewLocalDetector(shock.Params{
			Alpha:           cfg.Detector.Alpha,
			MaxOutliers:     cfg.Detector.MaxOutliers,
			ZScoreThreshold: cfg.Detector.ZScoreThreshold,
			Period:          cfg.Detector.Period,
		}), nil
	case "remote":
		base := analytics.NewHTTPServiceBase(cfg.Analytics.RemoteURL, cfg.Analytics.Timeout, cfg.Analytics.Retries)
		return analytics.NewRemoteDetector(base), nil
	default:
		return nil, fmt.Errorf("unknown analytics mode %q", cfg.Analytics.Mode)
	}
}

// ProvideFeedHub creates the live feed hub, or nil when the feed is disabled.
func ProvideFeedHub(cfg *config.Config, rec *metrics.Recorder, l *applogger.Logger) *ws.Hub {
	if !cfg.Feed.Enabled {
		return nil
	}
	return ws.NewHub(ws.HubConfig{
		SendBuffer:   cfg.Feed.SendBuffer,
		PingInterval: cfg.Feed.PingInterval,
		WriteTimeout: cfg.Feed.WriteTimeout,
		MaxClients:   cfg.Feed.MaxClients,
	}, rec, l)
}

// ProvideAnomalyUseCase creates the detection use case.
func ProvideAnomalyUseCase(
	cfg *config.Config,
	l *applogger.Logger,
	detector domsvc.AnomalyDetector,
	results domrepo.ResultCache,
	store domrepo.AnomalyStore,
	features domrepo.FeatureStore,
	hub *ws.Hub,
	rec *metrics.Recorder,
) *usecase.AnomalyUseCase {
	deps := usecase.AnomalyDeps{
		Detector: detector,
		Cache:    results,
		Store:    store,
		Features: features,
		Metrics:  rec,
		Logger:   l,
	}
	if hub != nil {
		deps.Feed = hub
	}
	return usecase.NewAnomalyUseCase(deps, usecase.AnomalyOptions{
		Timeout:       cfg.Detector.Timeout,
		VolWindow:     cfg.Analytics.Features.VolWindow,
		MaxBars:       cfg.Analytics.Features.MaxBars,
		BatchWorkers:  cfg.Detector.BatchWorkers,
		BatchMaxItems: cfg.Detector.BatchMaxItems,
	})
}

// ProvideResultPublisher publishes detections to the result topic.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ResultPublisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, rec *metrics.Recorder) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.TimingHook{Observe: func(_ string, d time.Duration, _ error) {
			rec.RecordLatency("kafka_handle", d)
		}},
	))
	return consumer, nil
}

// ProvideKafkaDetectHandler handles the request topic.
func ProvideKafkaDetectHandler(cfg *config.Config, uc *usecase.AnomalyUseCase, pub domrepo.ResultPublisher) *usecase.KafkaDetectHandler {
	return usecase.NewKafkaDetectHandler(cfg.Kafka.RequestTopic, uc, pub)
}

// ProvideHTTPServer builds the echo server with the API and feed routes.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, uc *usecase.AnomalyUseCase, hub *ws.Hub) *xhttp.Server {
	handlers := []xhttp.Handler{api.NewAnomalyEchoHandler(l, uc)}
	if hub != nil {
		handlers = append(handlers, ws.NewFeedHandler(hub))
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
		xhttp.WithMetrics(metricsPath, prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
		xhttp.WithLogger(l),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if cfg.RateLimit.Enabled {
		lim := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TTL)
		opts = append(opts, xhttp.WithMiddleware(middleware.RateLimit(lim, "/health", metricsPath)))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp creates the application and registers every client for
// shutdown.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaDetectHandler,
	hub *ws.Hub,
	producer *pkgkafka.Producer,
	c cache.Service,
	store domrepo.AnomalyStore,
	ch *pkgch.Client,
	_ LogShipping,
) *server.App {
	var handler pkgkafka.MessageHandler
	if consumer != nil {
		handler = kh
	}
	app := server.New(l, srv, consumer, handler, hub, cfg.Server.ShutdownTimeout)

	// closers run in reverse order; the log collector flushes through the
	// producer and must stop first
	if producer != nil {
		app.OnShutdown("kafka producer", producer.Close)
		app.OnShutdown("log collector", func() error { l.RemoveCollector(); return nil })
	}
	if ch != nil {
		app.OnShutdown("clickhouse", ch.Close)
	}
	app.OnShutdown("anomaly store", store.Close)
	app.OnShutdown("cache", c.Close)
	return app
}
