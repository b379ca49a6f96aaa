package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fekuna/qurban-engine/config"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/migration"
	"github.com/fekuna/qurban-engine/internal/product"
	"github.com/fekuna/qurban-engine/internal/scheduler"
	"github.com/fekuna/qurban-engine/pkg/broker"
	"github.com/fekuna/qurban-engine/pkg/cache"
	"github.com/fekuna/qurban-engine/pkg/database/postgres"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/middleware"

	animalH "github.com/fekuna/qurban-engine/internal/animal/handler"
	animalListenerPkg "github.com/fekuna/qurban-engine/internal/animal/listener"
	animalRepoPkg "github.com/fekuna/qurban-engine/internal/animal/repository"
	animalUCPkg "github.com/fekuna/qurban-engine/internal/animal/usecase"

	prodH "github.com/fekuna/qurban-engine/internal/product/handler"
	prodRepoPkg "github.com/fekuna/qurban-engine/internal/product/repository"
	prodUCPkg "github.com/fekuna/qurban-engine/internal/product/usecase"

	lifeH "github.com/fekuna/qurban-engine/internal/lifecycle/handler"
	lifeUCPkg "github.com/fekuna/qurban-engine/internal/lifecycle/usecase"

	distH "github.com/fekuna/qurban-engine/internal/distribution/handler"
	distRepoPkg "github.com/fekuna/qurban-engine/internal/distribution/repository"
	distUCPkg "github.com/fekuna/qurban-engine/internal/distribution/usecase"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.IsDevelopment() {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to Database and apply schema
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	if err := migration.Apply(ctx, db, appLogger); err != nil {
		appLogger.Fatal("Could not apply migrations", zap.Error(err))
	}

	txm := postgres.NewTxManager(db, cfg.Engine.AllocationRetries)

	// 4. Initialize Repositories
	animalRepo := animalRepoPkg.NewPGRepository(db)
	prodRepo := prodRepoPkg.NewPGRepository(db)
	distRepo := distRepoPkg.NewPGRepository(db)

	// 5. Initialize Redis (events and catalog cache)
	var (
		publisher   event.Publisher = event.NopPublisher{}
		catalog     product.Catalog = prodRepo
		redisClient *cache.RedisClient
	)
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		publisher = event.NewRedisPublisher(redisClient, cfg.Redis.EventsChannel)
		catalog = prodRepoPkg.NewCachedCatalog(prodRepo, redisClient, cfg.Redis.CatalogTTL, appLogger.Named("catalog-cache"))
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		appLogger.Warn("Redis disabled, events are not published and catalog reads are uncached")
	}

	dispatcher := event.NewDispatcher(publisher, appLogger)
	appMetrics := metrics.New()

	// 6. Initialize UseCases
	animalUC := animalUCPkg.NewAnimalUseCase(animalRepo, txm, dispatcher, appMetrics, cfg.Engine.GroupSize, appLogger)
	prodUC := prodUCPkg.NewProductUseCase(prodRepo, catalog, animalRepo, txm, dispatcher, appMetrics, appLogger)
	lifeUC := lifeUCPkg.NewLifecycleUseCase(animalRepo, catalog, prodUC, txm, dispatcher, appMetrics, appLogger)
	distUC := distUCPkg.NewDistributionUseCase(distRepo, prodRepo, prodUC, txm, dispatcher, appMetrics, appLogger)

	// 7. Initialize Handlers
	animalHandler := animalH.NewAnimalHandler(animalUC, appLogger)
	prodHandler := prodH.NewLedgerHandler(prodUC, appLogger)
	lifeHandler := lifeH.NewLifecycleHandler(lifeUC, appLogger)
	distHandler := distH.NewDistributionHandler(distUC, appLogger)

	// 8. Build gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("port", port), zap.Error(err))
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.RecoveryInterceptor(appLogger),
			middleware.ContextInterceptor(),
			middleware.LoggingInterceptor(appLogger.Named("grpc")),
		),
	)

	// Register Services
	animalH.RegisterAnimalServiceServer(grpcServer, animalHandler)
	prodH.RegisterLedgerServiceServer(grpcServer, prodHandler)
	lifeH.RegisterLifecycleServiceServer(grpcServer, lifeHandler)
	distH.RegisterDistributionServiceServer(grpcServer, distHandler)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Register Reflection
	reflection.Register(grpcServer)

	// 9. Build ops HTTP server
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			if err := redisClient.Health(pingCtx); err != nil {
				http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	opsServer := &http.Server{
		Addr:              cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 10. Start everything
	sched := scheduler.NewScheduler(cfg.Reconcile.Cron, cfg.Reconcile.Timeout, prodUC, appLogger)
	if err := sched.Start(); err != nil {
		appLogger.Fatal("Could not start scheduler", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting gRPC server", zap.String("port", port))
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		appLogger.Info("Starting ops HTTP server", zap.String("addr", opsServer.Addr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Kafka.Enabled {
		kafkaConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

		registrations := animalListenerPkg.NewRegistrationListener(kafkaConsumer, animalUC, appLogger)
		g.Go(func() error {
			registrations.Start(gctx)
			return nil
		})
	}

	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sched.Stop(shutdownCtx)
		grpcServer.GracefulStop()
		return opsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("server exited with error", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
