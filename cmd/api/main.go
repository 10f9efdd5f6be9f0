package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/event"
	"storefront-checkout/internal/lock"
	"storefront-checkout/internal/logger"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/server"
	"storefront-checkout/internal/service"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log = log.With(zap.String("env", cfg.Environment.Name))

	if cfg.Auth.JWTSecret == "" || cfg.Provider.SecretKey == "" {
		log.Fatal("JWT_SECRET and PAYMENT_PROVIDER_SECRET_KEY are required")
	}

	ctx := context.Background()

	db, err := client.InitDBClient(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to init database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookRecordRepo := repository.NewWebhookRecordRepository(db)

	if err := productRepo.Seed(ctx); err != nil {
		log.Fatal("Failed to seed products", zap.Error(err))
	}

	redisClient, err := client.InitRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	var locker lock.Locker
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Redis.LockTTL, log)
		log.Info("Using redis reconcile lock", zap.String("addr", cfg.Redis.Addr))
	} else {
		// only safe with a single api instance
		locker = lock.NewMemoryLocker()
		log.Warn("REDIS_ADDR not set, using in-process reconcile lock")
	}

	publisher := event.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic)
	defer publisher.Close()

	providerClient := client.NewProviderClient(&cfg.Provider)

	reconciler := service.NewReconciler(db, log, locker, publisher, paymentRepo, orderRepo, cartRepo)

	cartService := service.NewCartService(cartRepo, productRepo)
	orderService := service.NewOrderService(db, log, cartRepo, productRepo, orderRepo)
	paymentService := service.NewPaymentService(
		log,
		providerClient,
		reconciler,
		orderRepo,
		paymentRepo,
		webhookRecordRepo,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(log, cfg.Auth.JWTSecret, cartService, orderService, paymentService)

	log.Info("Starting HTTP server", zap.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("Signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
