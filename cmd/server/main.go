package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/kevin07696/purchase-service/internal/adapters/billing"
	"github.com/kevin07696/purchase-service/internal/adapters/fraudservice"
	"github.com/kevin07696/purchase-service/internal/adapters/kafka"
	"github.com/kevin07696/purchase-service/internal/adapters/postback"
	"github.com/kevin07696/purchase-service/internal/adapters/postgres"
	redisadapter "github.com/kevin07696/purchase-service/internal/adapters/redis"
	"github.com/kevin07696/purchase-service/internal/adapters/secrets"
	"github.com/kevin07696/purchase-service/internal/config"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	purchaseHandler "github.com/kevin07696/purchase-service/internal/handlers/purchase"
	"github.com/kevin07696/purchase-service/internal/services/fraud"
	"github.com/kevin07696/purchase-service/internal/services/idempotency"
	"github.com/kevin07696/purchase-service/internal/services/purchase"
	pkghttp "github.com/kevin07696/purchase-service/pkg/http"
	"github.com/kevin07696/purchase-service/pkg/logging"
	"github.com/kevin07696/purchase-service/pkg/middleware"
	"github.com/kevin07696/purchase-service/pkg/observability"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"github.com/kevin07696/purchase-service/pkg/shutdown"
)

const siteCacheSize = 1000

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting purchase service",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.String("secrets_backend", cfg.Secrets.Backend),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Purchase service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Purchase service stopped")
}

// infrastructure holds the adapters owned by main
type infrastructure struct {
	db        *postgres.PostgreSQLAdapter
	sessions  *postgres.SessionStore
	sites     *postgres.CachedSiteRepository
	redis     *redisadapter.IdempotencyStore
	publisher *kafka.EventPublisher
	postbacks *postback.Dispatcher
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	timeouts := resilience.DefaultTimeoutConfig()
	manager := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	infra, err := initInfrastructure(ctx, cfg, timeouts, manager, logger)
	if err != nil {
		// Close whatever was opened before the failure
		_ = manager.Shutdown()
		return err
	}

	orchestrator := initOrchestrator(cfg, infra, logger)

	// Purchase HTTP API
	tracker := shutdown.NewInFlightTracker("purchase-http", logger)
	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
	manager.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)
	manager.Register("purge-worker", startPurgeWorker(ctx, cfg, infra.sessions, logger).Shutdown)
	manager.Register("in-flight-requests", tracker.Shutdown)

	mux := http.NewServeMux()
	purchaseHandler.NewHandler(orchestrator, timeouts, logger).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: middleware.Chain(mux,
			middleware.Recovery(logger),
			middleware.RequestLogger(logger),
			middleware.NewSecurityHeaders(cfg.Logger.Development).Middleware,
			func(next http.Handler) http.Handler { return observability.HTTPMiddleware("purchase", next) },
			tracker.Middleware,
			rateLimiter.Middleware,
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health service
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		_ = manager.Shutdown()
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	healthChecker := observability.NewHealthChecker().
		Register("postgres", infra.db).
		Register("redis", infra.redis)
	metricsServer := observability.NewMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker)

	manager.RegisterNoErr("grpc", grpcServer.GracefulStop)
	manager.Register("metrics-http", metricsServer.Shutdown)
	manager.Register("purchase-http", httpServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Purchase HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("purchase http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("gRPC health server listening", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Metrics server listening", zap.String("address", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		healthChecker.WatchGRPC(gctx, healthServer, 10*time.Second)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down purchase service")
		healthServer.Shutdown()
		return manager.Shutdown()
	})

	return g.Wait()
}

func initInfrastructure(ctx context.Context, cfg *config.Config, timeouts *resilience.TimeoutConfig, manager *shutdown.Manager, logger *zap.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	dbCfg := postgres.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	db, err := postgres.NewPostgreSQLAdapter(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	manager.RegisterNoErr("postgres", db.Close)
	db.StartPoolMonitoring(ctx, 30*time.Second)
	infra.db = db

	executor := postgres.NewDBExecutor(db.Pool())
	infra.sessions = postgres.NewSessionStore(executor, logger)
	infra.sites = postgres.NewCachedSiteRepository(
		postgres.NewSiteRepository(db.Pool()), logger, cfg.Database.SiteCacheTTL, siteCacheSize)

	redisClient, err := redisadapter.NewClient(ctx, redisadapter.Config{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}
	manager.RegisterCloser("redis", redisClient)
	infra.redis = redisadapter.NewIdempotencyStore(redisClient, cfg.Redis.KeyPrefix)

	secretProvider, err := secrets.New(ctx, secretsConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize secret provider: %w", err)
	}

	if cfg.Kafka.Enabled {
		kafkaCfg := kafka.DefaultConfig(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		kafkaCfg.BufferSize = cfg.Kafka.BufferSize
		infra.publisher = kafka.NewEventPublisher(kafkaCfg, logger)
		// Only Close stops the loop, so events queued during shutdown are flushed
		infra.publisher.Start(context.WithoutCancel(ctx))
		manager.RegisterCloser("kafka-publisher", infra.publisher)
	}

	postbackCfg := postback.DefaultConfig()
	postbackCfg.SecretPathFormat = cfg.Secrets.PostbackPathFormat
	postbackCfg.Workers = cfg.Purchase.PostbackWorkers
	postbackCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	postbackClient := pkghttp.NewHTTPClient(pkghttp.PostbackClientConfig(), timeouts.PostbackDelivery)
	infra.postbacks = postback.NewDispatcher(postbackClient, secretProvider, timeouts, postbackCfg, logger)
	infra.postbacks.Start(context.WithoutCancel(ctx))
	manager.RegisterCloser("postback-dispatcher", infra.postbacks)

	return infra, nil
}

func initOrchestrator(cfg *config.Config, infra *infrastructure, logger *zap.Logger) *purchase.Orchestrator {
	portsLogger := logging.NewZapLogger(logger)
	serviceClient := pkghttp.NewHTTPClient(pkghttp.ServiceClientConfig(), cfg.Services.WriteTimeout)

	billingCfg := func(name, baseURL string) billing.Config {
		return billing.Config{
			BaseURL:       baseURL,
			APIKey:        cfg.Services.APIKey,
			ReadTimeout:   cfg.Services.ReadTimeout,
			WriteTimeout:  cfg.Services.WriteTimeout,
			ReadAttempts:  cfg.Services.ReadAttempts,
			BreakerConfig: resilience.DefaultCircuitBreakerConfig(name),
		}
	}
	transactions := billing.NewTransactionClient(billingCfg("transaction-service", cfg.Services.TransactionURL), serviceClient, logger)
	cascades := billing.NewCascadeClient(billingCfg("cascade-service", cfg.Services.CascadeURL), serviceClient, logger)
	binRouting := billing.NewBinRoutingClient(billingCfg("bin-routing-service", cfg.Services.BinRoutingURL), serviceClient, logger)

	fraudCfg := fraudservice.Config{
		AdviceURL:    cfg.Services.FraudURL,
		BlacklistURL: cfg.Services.BlacklistURL,
		APIKey:       cfg.Services.APIKey,
		Timeout:      cfg.Services.ReadTimeout,
		ReadAttempts: cfg.Services.ReadAttempts,
	}
	advice := fraudservice.NewAdviceClient(fraudCfg, serviceClient, logger)
	blacklist := fraudservice.NewBlacklistClient(fraudCfg, serviceClient, logger)

	// A nil interface disables event ingestion; never pass a nil *EventPublisher
	var eventQueue ports.EventQueue
	if infra.publisher != nil {
		eventQueue = infra.publisher
	}

	registry := purchase.DefaultEventRegistry()
	for _, biller := range cfg.Purchase.ThirdPartyBillers {
		registry.RegisterThirdPartyBiller(biller)
	}
	events := purchase.NewEventDispatcher(registry, eventQueue, infra.postbacks, purchase.EventToggles{
		EventIngestionEnabled: cfg.Purchase.EventIngestionEnabled,
		PostbacksEnabled:      cfg.Purchase.PostbacksEnabled,
	}, portsLogger)

	return purchase.NewOrchestrator(purchase.Dependencies{
		Sessions:  infra.sessions,
		Sites:     infra.sites,
		Guard:     idempotency.NewGuard(infra.redis, cfg.Purchase.IdempotencyTTL, portsLogger),
		Fraud:     fraud.NewGate(advice, cfg.Purchase.PaymentTypes(), portsLogger),
		Blacklist: fraud.NewBlacklistGuard(blacklist, portsLogger),
		Cascades:  purchase.NewCascadeSelector(cascades, cascades, portsLogger),
		Routing:   purchase.NewRoutingResolver(binRouting, portsLogger),
		Engine:    purchase.NewAttemptEngine(transactions, portsLogger),
		Events:    events,
		Logger:    portsLogger,
	}, cfg.Purchase.BrandPolicy())
}

func secretsConfig(cfg *config.Config) secrets.Config {
	awsCfg := secrets.DefaultAWSConfig(cfg.Secrets.AWSRegion)
	awsCfg.Endpoint = cfg.Secrets.AWSEndpoint

	vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress)
	vaultCfg.AuthMethod = cfg.Secrets.VaultAuthMethod
	vaultCfg.Token = cfg.Secrets.VaultToken
	vaultCfg.RoleID = cfg.Secrets.VaultRoleID
	vaultCfg.SecretID = cfg.Secrets.VaultSecretID
	vaultCfg.MountPath = cfg.Secrets.VaultMountPath

	return secrets.Config{
		Backend:   cfg.Secrets.Backend,
		LocalPath: cfg.Secrets.LocalPath,
		AWS:       awsCfg,
		Vault:     vaultCfg,
	}
}

// startPurgeWorker deletes expired purchase sessions on an interval
func startPurgeWorker(ctx context.Context, cfg *config.Config, sessions *postgres.SessionStore, logger *zap.Logger) *shutdown.PeriodicWorker {
	worker := shutdown.NewPeriodicWorker("session-purge", cfg.Database.PurgeInterval, logger)
	worker.Start(ctx, func(ctx context.Context) {
		purged, err := sessions.PurgeExpired(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Failed to purge expired purchase sessions", zap.Error(err))
			}
			return
		}
		if purged > 0 {
			logger.Info("Purged expired purchase sessions", zap.Int64("count", purged))
		}
	})
	return worker
}
