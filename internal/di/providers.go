package di

import (
	"context"
	"fmt"
	"time"

	"speedliner/internal/domain/models"
	"speedliner/internal/domain/repository"
	"speedliner/internal/handler/api"
	internalrepo "speedliner/internal/repository"
	"speedliner/internal/usecase"
	"speedliner/pkg/cache"
	pkgch "speedliner/pkg/clickhouse"
	"speedliner/pkg/config"
	xhttp "speedliner/pkg/http"
	"speedliner/pkg/http/middleware"
	pkgkafka "speedliner/pkg/kafka"
	"speedliner/pkg/logger"
	"speedliner/pkg/metrics"
	"speedliner/pkg/server"
)

const limiterIdleTTL = 10 * time.Minute

// ProvideKafkaProducer creates a Kafka producer. Nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, 0),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreateTopics),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger and, when enabled, attaches the
// error collector that ships aggregated lines through the Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.LogCollector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.LogCollector.FlushInterval,
			CountThreshold: cfg.LogCollector.CountThreshold,
			Topic:          cfg.LogCollector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideHTTPClient is shared by the route source, identity and submission adapters.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Express.RequestTimeout))
}

// ProvideCache creates the key-value store behind the cooldown and the route listing cache.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.CooldownStore.Type == "memory" {
		return cache.NewMemoryCache(), nil
	}

	redisOpts := []cache.RedisOption{
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	}
	if cfg.Redis.Port > 0 {
		redisOpts = append(redisOpts, cache.WithRedisPort(cfg.Redis.Port))
	}
	if cfg.Redis.PoolSize > 0 {
		redisOpts = append(redisOpts, cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second))
	}
	remote, err := cache.NewRedisCache(redisOpts...)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.CooldownStore.Type == "layered" {
		return cache.NewLayeredCache(remote, cache.WithLayeredMemoryTTL(5*time.Second)), nil
	}
	return remote, nil
}

func ProvideCooldownStore(c cache.Service) repository.CooldownStore {
	return internalrepo.NewCacheCooldownStore(c)
}

// ProvideClickHouseClient connects only when the audit trail goes to ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Audit.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideAuditStore prepares the audit table. Nil without a ClickHouse client.
func ProvideAuditStore(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) (*internalrepo.ClickHouseAuditStore, error) {
	if ch == nil {
		return nil, nil
	}
	store, err := internalrepo.NewClickHouseAuditStore(ch.DB(), cfg.Audit.Table, l)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, store.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideAuditSink picks where submission attempts are recorded.
func ProvideAuditSink(cfg *config.Config, producer *pkgkafka.Producer, store *internalrepo.ClickHouseAuditStore) repository.AuditSink {
	switch {
	case cfg.Audit.Backend == "kafka" && producer != nil:
		return internalrepo.NewKafkaAuditSink(producer, cfg.Audit.Topic)
	case cfg.Audit.Backend == "clickhouse" && store != nil:
		return store
	default:
		return internalrepo.NoopAuditSink{}
	}
}

func ProvideIdentitySource(cfg *config.Config, client *xhttp.Client) repository.IdentitySource {
	if cfg.Express.IdentityURL == "" {
		return nil
	}
	return internalrepo.NewHTTPIdentitySource(client, cfg.Express.IdentityURL)
}

func ProvideSubmissionEndpoint(cfg *config.Config, client *xhttp.Client) repository.SubmissionEndpoint {
	return internalrepo.NewHTTPSubmissionEndpoint(client, cfg.Express.SubmissionURL)
}

// ProvideSubmitterFactory builds one submission client per browser.
func ProvideSubmitterFactory(
	cfg *config.Config,
	identity repository.IdentitySource,
	endpoint repository.SubmissionEndpoint,
	store repository.CooldownStore,
	audit repository.AuditSink,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SubmitterFactory {
	return &usecase.SubmitterFactory{
		Identity:  identity,
		Endpoint:  endpoint,
		Store:     store,
		Audit:     audit,
		Metrics:   m,
		Logger:    l,
		Cooldown:  cfg.CooldownWindow(),
		KeyPrefix: cfg.CooldownStore.KeyPrefix,
		Config: usecase.SubmissionConfig{
			Note: cfg.Express.Note,
			Fallback: models.Identity{
				CharacterID:   cfg.Express.FallbackIdentity.ID,
				CharacterName: cfg.Express.FallbackIdentity.Name,
			},
			IdentityTimeout: cfg.Express.RequestTimeout / 3,
			SubmitTimeout:   cfg.Express.RequestTimeout,
		},
	}
}

func ProvideRouteRegistry(l *logger.Logger) *usecase.RouteRegistry {
	return usecase.NewRouteRegistry(l)
}

func ProvideSessionHub(
	cfg *config.Config,
	registry *usecase.RouteRegistry,
	factory *usecase.SubmitterFactory,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SessionHub {
	return usecase.NewSessionHub(registry, factory, usecase.SessionConfig{
		Debounce: cfg.Express.Debounce,
		Cooldown: cfg.CooldownWindow(),
	}, m, l)
}

// ProvideRouteSync polls the route source. Nil when routes only arrive by push.
func ProvideRouteSync(cfg *config.Config, client *xhttp.Client, hub *usecase.SessionHub, m repository.Metrics, l *logger.Logger) *usecase.RouteSync {
	if cfg.Routes.SourceURL == "" {
		return nil
	}
	source := internalrepo.NewHTTPRouteSource(client, cfg.Routes.SourceURL)
	return usecase.NewRouteSync(source, hub, cfg.Routes.RefreshInterval, m, l)
}

// ProvideKafkaConsumer creates the routes topic consumer. Nil without a topic.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Routes.Topic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.RejectEmpty())
	return consumer, nil
}

// ProvideKafkaRoutesHandler applies route documents from the routes topic.
func ProvideKafkaRoutesHandler(cfg *config.Config, hub *usecase.SessionHub, m repository.Metrics) *usecase.KafkaRoutesHandler {
	if cfg.Routes.Topic == "" {
		return nil
	}
	return usecase.NewKafkaRoutesHandler(cfg.Routes.Topic, hub, m)
}

// ProvideHTTPHandler assembles the quote API and the websocket session endpoint.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *logger.Logger,
	hub *usecase.SessionHub,
	m repository.Metrics,
	c cache.Service,
	store *internalrepo.ClickHouseAuditStore,
) xhttp.Handler {
	opts := api.Options{
		ClientCookie: cfg.Server.ClientCookie,
		SecureCookie: cfg.Server.SecureCookie,
		AdminToken:   cfg.Routes.AdminToken,
		Note:         cfg.Express.Note,
		RoutesTTL:    cfg.Routes.CacheTTL,
		RoutesCache:  c,
		ExpressLimit: middleware.NewKeyLimiter(cfg.Express.RateLimit.RPS, cfg.Express.RateLimit.Burst, limiterIdleTTL),
		QuoteLimit:   middleware.NewKeyLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, limiterIdleTTL),
		EventLimit:   middleware.NewKeyLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, limiterIdleTTL),
		SessionPing:  cfg.Server.PingInterval,
	}
	if store != nil {
		opts.History = store
	}
	return api.NewRouter(
		api.NewQuoteEchoHandler(l, hub, m, opts),
		api.NewSessionHandler(l, hub, cfg.Server.AllowedOrigins, opts),
	)
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowThreshold(cfg.Metrics.SlowThreshold),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	httpServer *xhttp.Server,
	hub *usecase.SessionHub,
	routeSync *usecase.RouteSync,
	consumer *pkgkafka.Consumer,
	routesHandler *usecase.KafkaRoutesHandler,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
	audit repository.AuditSink,
) *server.App {
	app := server.New(cfg, l, httpServer, hub)
	if routeSync != nil {
		app.WithRouteSync(routeSync)
	}
	if consumer != nil && routesHandler != nil {
		app.WithConsumer(consumer, routesHandler)
	}
	app.OnClose("audit", audit.Close)
	app.OnClose("log collector", func() error {
		l.RemoveCollector()
		return nil
	})
	app.OnClose("cache", c.Close)
	if producer != nil {
		app.OnClose("kafka producer", producer.Close)
	}
	if ch != nil {
		app.OnClose("clickhouse", ch.Close)
	}
	return app
}
