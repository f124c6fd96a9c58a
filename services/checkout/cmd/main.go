package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/ferreteria-checkout/pkg/config"
	"github.com/sakashimaa/ferreteria-checkout/pkg/db"
	"github.com/sakashimaa/ferreteria-checkout/pkg/kafka"
	"github.com/sakashimaa/ferreteria-checkout/pkg/metrics"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/ferreteria-checkout/pkg/outbox/repository"
	"github.com/sakashimaa/ferreteria-checkout/pkg/outbox/worker"
	"github.com/sakashimaa/ferreteria-checkout/pkg/utils"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/gateway/transbank"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/repository"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/service"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/transport/http"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/transport/http/handler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "checkout-service"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig(serviceName))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.Auth.Secret == "" {
		logger.Fatal("ACCESS_SECRET is not set")
	}

	tp, err := utils.InitTracer(ctx, serviceName, cfg.Env, cfg.Telemetry.Endpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to create pool", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		_ = redisClient.Close()
	}()

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("error creating kafka producer", zap.Error(err))
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			logger.Warn("error closing kafka producer", zap.Error(err))
		}
	}()

	outboxRepo := outboxRepository.NewOutboxRepository(logger)
	repos := service.Repositories{
		Cart:        repository.NewCartRepository(pool, logger),
		Product:     repository.NewProductRepository(pool, logger),
		Purchase:    repository.NewPurchaseRepository(pool, logger),
		User:        repository.NewUserRepository(pool, logger),
		Transaction: repository.NewTransactionRepository(pool, logger),
		Outbox:      outboxRepo,
	}

	gateway := transbank.NewClient(transbank.Config{
		BaseURL:      cfg.Webpay.BaseURL,
		CommerceCode: cfg.Webpay.CommerceCode,
		APIKeySecret: cfg.Webpay.APIKeySecret,
		Timeout:      cfg.Webpay.Timeout,
	}, logger)

	checkoutService := service.NewCachedCheckoutService(
		service.NewCheckoutService(pool, logger, repos, gateway, cfg.Front.URL),
		redisClient,
		cfg.Redis.PurchasesTTL,
		logger,
	)

	outboxProcessor := worker.NewOutboxProcessor(
		pool,
		outboxRepo,
		kafkaProducer,
		logger,
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithInterval(cfg.Outbox.Interval),
	)

	reg := metrics.NewRegistry()
	serverMetrics := metrics.NewServerMetrics("checkout", reg)

	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())
	app.Use(serverMetrics.Middleware())
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	app.Get("/metrics", metrics.Handler(reg))

	http.RegisterRoutes(app, &http.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutService, logger),
		Webpay:   handler.NewWebpayHandler(checkoutService, logger, serverMetrics),
	}, cfg.Auth.Secret)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		outboxProcessor.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		mylogger.Info(gCtx, logger, "HTTP service listening", zap.String("port", cfg.HTTP.Port))
		return app.Listen(cfg.HTTP.Port)
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		mylogger.Info(shutdownCtx, logger, "Shutting down checkout service")

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
		}

		if err := tp.Shutdown(shutdownCtx); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		mylogger.Error(ctx, logger, "checkout service stopped with error", zap.Error(err))
	}
}
