package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/ferreteria-checkout/pkg/config"
	"github.com/sakashimaa/ferreteria-checkout/pkg/db"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/pkg/utils"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/service"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/transport/kafka"
	"go.uber.org/zap"
)

const serviceName = "notification-service"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig(serviceName))
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, serviceName, cfg.Env, cfg.Telemetry.Endpoint)
	if err != nil {
		logger.Fatal("Error starting telemetry", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("error creating postgres db", zap.Error(err))
	}
	defer pool.Close()

	emailSender := email.NewSMTPSender(cfg.SMTP, cfg.Front.URL, logger)
	notificationService := service.NewNotificationService(emailSender, logger, pool)

	consumer := kafka.NewConsumer(notificationService, logger)

	mylogger.Info(ctx, logger, "Notification service consuming", zap.Strings("brokers", cfg.Kafka.Brokers))

	if err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID); err != nil {
		mylogger.Error(ctx, logger, "Consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error closing telemetry", zap.Error(err))
	}
}
