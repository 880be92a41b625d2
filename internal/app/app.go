package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/clients"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/config"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/event"
	handler "github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/handler/http"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository/postgres"
	redisrepo "github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository/redis"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/service"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/workflows"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/migrations"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/database"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/health"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/httpclient"
	pkgkafka "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/kafka"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/tracing"
)

// App wires together all dependencies and runs the workflow orchestrator.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	orchestration  *service.OrchestrationService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "orchestrator",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "orchestrator")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Initialize Redis for the statistics cache.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	workflowRepo := postgres.NewWorkflowRepository(pool)
	stepRepo := postgres.NewStepRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	statsCache := redisrepo.NewStatisticsCache(redisClient, time.Duration(cfg.StatisticsCacheTTL)*time.Second)

	// Create HTTP client with circuit breaker for downstream system calls.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	})

	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "orchestrator-downstream",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(clients.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)

	// Downstream system clients with per-system step timeouts.
	downstream := workflows.Clients{
		Billing: clients.NewBillingClient(cbClient, cfg.BillingServiceURL, time.Duration(cfg.BillingTimeout)*time.Second, logger),
		Address: clients.NewAddressClient(cbClient, cfg.AddressServiceURL, time.Duration(cfg.AddressTimeout)*time.Second, logger),
		Radius:  clients.NewRadiusClient(cbClient, cfg.RadiusServiceURL, time.Duration(cfg.RadiusTimeout)*time.Second, logger),
		IPAM:    clients.NewIPAMClient(cbClient, cfg.IPAMServiceURL, time.Duration(cfg.IPAMTimeout)*time.Second, logger),
		OLT:     clients.NewOLTClient(cbClient, cfg.OLTServiceURL, time.Duration(cfg.OLTTimeout)*time.Second, logger),
		CPE:     clients.NewCPEClient(cbClient, cfg.CPEServiceURL, time.Duration(cfg.CPETimeout)*time.Second, logger),
	}

	registry := workflows.NewRegistry(downstream)
	engine := saga.NewOrchestrator(workflowRepo, stepRepo, logger, saga.NewMetrics(prometheus.DefaultRegisterer))

	orchestration := service.NewOrchestrationService(
		workflowRepo, stepRepo, registry, engine, eventProducer, statsCache, logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// HTTP router.
	router := handler.NewRouter(orchestration, healthHandler, logger, handler.RouterConfig{
		Environment:        cfg.Environment,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PprofAllowedCIDRs:  cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      130 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       producer,
		orchestration:  orchestration,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Workflows left mid-flight by a previous process are resumed in the
// background once the server is up.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		resumed, err := a.orchestration.ResumeIncomplete(ctx)
		if err != nil {
			a.logger.Error("crash recovery failed", slog.String("error", err.Error()))
			return
		}
		if resumed > 0 {
			a.logger.Info("crash recovery complete", slog.Int("resumed", resumed))
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests, including running workflows)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests. Workflows run inside the request, so
	// the budget is generous; anything cut off is picked up by crash recovery
	// on the next start.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
