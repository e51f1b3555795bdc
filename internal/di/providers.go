package di

import (
	"context"
	"fmt"
	"time"

	"TradeCast/internal/domain/repository"
	"TradeCast/internal/gateway"
	"TradeCast/internal/handler/api"
	internalrepo "TradeCast/internal/repository"
	"TradeCast/internal/service/cache"
	"TradeCast/internal/service/identity"
	"TradeCast/internal/service/ratelimit"
	"TradeCast/internal/usecase"
	pkgch "TradeCast/pkg/clickhouse"
	"TradeCast/pkg/config"
	xhttp "TradeCast/pkg/http"
	pkgkafka "TradeCast/pkg/kafka"
	applogger "TradeCast/pkg/logger"
	"TradeCast/pkg/metrics"
	pkgpg "TradeCast/pkg/postgres"
	"TradeCast/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvidePostgresClient creates the Postgres client and applies the schema.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgpg.NewClient(ctx,
		pkgpg.WithHost(cfg.Postgres.Host),
		pkgpg.WithPort(cfg.Postgres.Port),
		pkgpg.WithDatabase(cfg.Postgres.Database),
		pkgpg.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
		pkgpg.WithSSLMode(cfg.Postgres.SSLMode),
		pkgpg.WithPoolSize(int32(cfg.Postgres.MaxConns), int32(cfg.Postgres.MinConns)),
		pkgpg.WithConnLifetime(cfg.Postgres.ConnLifetime.Duration()),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.PostgresSchema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient creates the audit client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Audit.Host),
		pkgch.WithPort(cfg.Audit.Port),
		pkgch.WithDatabase(cfg.Audit.Database),
		pkgch.WithCredentials(cfg.Audit.User, cfg.Audit.Password),
		pkgch.WithTimeouts(cfg.Audit.DialTimeout.Duration(), 10*time.Second),
		pkgch.WithAsyncInsert(true, false),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.AuditSchema(cfg.Audit.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer with tier-keyed partitioning.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger.Duration()),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout.Duration(), cfg.Kafka.Producer.ReadTimeout.Duration()),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the fan-out consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin.Duration(), cfg.Kafka.Consumer.BackoffMax.Duration()),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSignalStore creates the Postgres signal store.
func ProvideSignalStore(pg *pkgpg.Client, l *applogger.Logger) repository.SignalStore {
	store := internalrepo.NewPGSignalStore(pg)
	store.SetLogger(l)
	return store
}

// ProvideDeliveryStore creates the Postgres delivery store.
func ProvideDeliveryStore(pg *pkgpg.Client, l *applogger.Logger) repository.DeliveryStore {
	store := internalrepo.NewPGDeliveryStore(pg)
	store.SetLogger(l)
	return store
}

// ProvideSubscriberStore creates the Postgres subscriber store.
func ProvideSubscriberStore(pg *pkgpg.Client) repository.SubscriberStore {
	return internalrepo.NewPGSubscriberStore(pg)
}

// ProvideEventPublisher creates the Kafka fan-out publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) repository.EventPublisher {
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	pub.SetLogger(l)
	return pub
}

// ProvideAuditSink creates the ClickHouse sink, or a no-op when disabled.
func ProvideAuditSink(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.AuditSink {
	if ch == nil {
		return internalrepo.NopAuditSink{}
	}
	sink := internalrepo.NewCHAuditSink(ch, cfg.Audit.Database)
	sink.SetLogger(l)
	return sink
}

// ProvideIdentityProvider picks the HTTP verifier or the static dev map.
func ProvideIdentityProvider(cfg *config.Config) identity.Provider {
	if cfg.Identity.ProviderURL != "" {
		return identity.NewHTTPProvider(cfg.Identity.ProviderURL, cfg.Identity.Timeout.Duration())
	}
	return identity.NewStaticProvider(cfg.Identity.StaticTokens)
}

// ProvideBytesCache picks Redis or the in-process TTL cache.
func ProvideBytesCache(cfg *config.Config) cache.BytesCache {
	if cfg.Sync.Redis.Enabled {
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Sync.Redis.Addr,
			Password: cfg.Sync.Redis.Password,
			DB:       cfg.Sync.Redis.DB,
		})
	}
	return cache.NewTTLCache()
}

// ProvideHub creates the websocket connection registry.
func ProvideHub(cfg *config.Config, l *applogger.Logger) *gateway.Hub {
	return gateway.NewHub(gateway.Config{
		SendBuffer:   cfg.Gateway.SendBuffer,
		WriteTimeout: cfg.Gateway.WriteTimeout.Duration(),
		PingInterval: cfg.Gateway.PingInterval.Duration(),
	}, l)
}

// ProvideBroadcaster creates the async fan-out publisher worker.
func ProvideBroadcaster(pub repository.EventPublisher, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.Broadcaster {
	return usecase.NewBroadcaster(pub, m, usecase.BroadcasterConfig{
		RetryMax:   cfg.Signals.PublishRetryMax,
		BackoffMin: cfg.Signals.PublishBackoffMin.Duration(),
		BackoffMax: cfg.Signals.PublishBackoffMax.Duration(),
	}, l)
}

// ProvideSignalService wires the ingestion usecase.
func ProvideSignalService(
	store repository.SignalStore,
	subs repository.SubscriberStore,
	broadcaster *usecase.Broadcaster,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SignalService {
	return usecase.NewSignalService(
		store, subs, broadcaster, m,
		usecase.ThresholdPolicy(cfg.Signals.RecommendThreshold),
		cfg.Signals.DedupBucket.Duration(),
		l,
	)
}

// ProvideSyncService wires the pull-based catch-up usecase.
func ProvideSyncService(
	store repository.SignalStore,
	deliveries repository.DeliveryStore,
	audit repository.AuditSink,
	m repository.Metrics,
	bc cache.BytesCache,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SyncService {
	return usecase.NewSyncService(store, deliveries, audit, m, bc, usecase.SyncConfig{
		MaxLimit:     cfg.Sync.MaxLimit,
		RecentWindow: cfg.Sync.RecentWindow.Duration(),
		StatsTTL:     cfg.Sync.StatsCacheTTL.Duration(),
	}, l)
}

// ProvideFanoutHandler wires the Kafka consumer handler.
func ProvideFanoutHandler(
	store repository.SignalStore,
	deliveries repository.DeliveryStore,
	subs repository.SubscriberStore,
	hub *gateway.Hub,
	audit repository.AuditSink,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.FanoutHandler {
	return usecase.NewFanoutHandler(cfg.Kafka.Topic, store, deliveries, subs, hub, audit, m, l)
}

// ProvideRateLimiter creates the shared per-user limiter.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPHandler bundles every route registrar.
func ProvideHTTPHandler(
	l *applogger.Logger,
	signals *usecase.SignalService,
	sync *usecase.SyncService,
	store repository.SignalStore,
	provider identity.Provider,
	limiter *ratelimit.Limiter,
	hub *gateway.Hub,
) xhttp.Handler {
	return xhttp.HandlerGroup{
		api.NewAdminSignalsHandler(l, signals, provider),
		api.NewSyncHandler(l, sync, provider, limiter),
		api.NewHealthHandler(store),
		gateway.NewHandler(hub, provider, l),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	hub *gateway.Hub,
	broadcaster *usecase.Broadcaster,
	consumer *pkgkafka.Consumer,
	fanout *usecase.FanoutHandler,
	pgClient *pkgpg.Client,
	chClient *pkgch.Client,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, l, handler, hub, broadcaster, consumer, fanout, pgClient, chClient)
}
