package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/config"
	"github.com/fjod/go_storefront/internal/consumer"
	h "github.com/fjod/go_storefront/internal/http"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/pricing"
	"github.com/fjod/go_storefront/internal/publisher"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/fjod/go_storefront/internal/service"
	"github.com/fjod/go_storefront/internal/worker"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/fjod/go_storefront/pkg/logger"
)

const linesCacheTTL = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logr := logger.New("storefront", logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logr)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	// Database setup
	port, err := strconv.Atoi(cfg.DBPort)
	if err != nil {
		log.Fatalf("Invalid DB_PORT: %v", err)
	}
	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              port,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logr.Info("database migrations completed")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logr.Warn("redis unavailable, cart reads will go to the database", "err", err)
	}
	linesCache := cache.NewRedisCache(redisClient, linesCacheTTL)

	reader, closeCatalog, err := newCatalogReader(cfg, repo)
	if err != nil {
		log.Fatalf("Failed to set up catalog: %v", err)
	}
	defer closeCatalog()

	provider, err := newPaymentProvider(cfg, logr)
	if err != nil {
		log.Fatalf("Failed to set up payment provider: %v", err)
	}

	resolver := pricing.NewResolver(reader, cfg.CatalogTimeout)
	identity := service.NewIdentityManager(repo, linesCache, logr, cfg.AnonymousCartTTL)
	ledger := service.NewLedger(repo, resolver, linesCache, logr)
	verifier := service.NewVerifier(repo, resolver, cfg.AmountTolerance)
	initiator := service.NewInitiator(provider, repo, logr, cfg.PaymentTimeout)
	checkout := service.NewCheckoutService(repo, verifier, initiator, cfg.Currency, logr)

	router := h.NewRouter(
		h.RouterConfig{
			JWTSecret:      []byte(cfg.JWTSecret),
			RequestTimeout: cfg.RequestTimeout,
			MaxBodyBytes:   1 << 20, // 1MB
		},
		h.NewCartHandler(identity, ledger, cfg.RequestTimeout, logr),
		h.NewCheckoutHandler(checkout, cfg.RequestTimeout, logr),
		logr,
	)

	// Background workers
	var wg sync.WaitGroup
	bgCtx, bgCancel := context.WithCancel(context.Background())

	poller := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.OutboxTopic, cfg.KafkaBrokers...), cfg.OutboxInterval, logr)
	paymentEvents := consumer.NewPaymentEventsConsumer(consumer.NewKafkaReader(cfg.PaymentEventsTopic, cfg.KafkaBrokers...), repo, repo, linesCache, logr)
	sweeper := worker.NewSweeper(repo, linesCache, cfg.SweepInterval, logr)

	for _, run := range []func(context.Context){poller.Run, paymentEvents.Run, sweeper.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(bgCtx)
		}()
	}

	// Ops gRPC listener
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logr.Info("grpc health listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve grpc: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logr.Info("storefront starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down storefront")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("http server forced to shutdown", "err", err)
	}
	grpcServer.GracefulStop()

	bgCancel()
	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
		logr.Info("background workers stopped cleanly")
	case <-ctx.Done():
		logr.Warn("background workers did not stop before timeout")
	}

	paymentEvents.Close()
	if err := poller.Close(); err != nil {
		logr.Error("failed to close kafka writer", "err", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		logr.Error("failed to shut down tracer provider", "err", err)
	}
	logr.Info("storefront exited")
}

func newCatalogReader(cfg *config.Config, repo *repository.Repository) (catalog.Reader, func(), error) {
	switch cfg.CatalogBackend {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := catalog.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Client().Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongo", "err", err)
			}
		}
		return catalog.NewMongoReader(db), closeFn, nil
	default:
		return catalog.NewPostgresReader(repo.DB()), func() {}, nil
	}
}

func newPaymentProvider(cfg *config.Config, logr *slog.Logger) (payment.Provider, error) {
	var p payment.Provider
	switch cfg.PaymentProvider {
	case "stripe":
		p = payment.NewStripeProvider(cfg.StripeSecretKey, nil)
	case "fake":
		logr.Warn("using fake payment provider, no real charges will be created")
		p = payment.NewFakeProvider(0)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
	return payment.NewBreakerProvider(p, circuitbreaker.DefaultConfig("payment-provider"), logr), nil
}
