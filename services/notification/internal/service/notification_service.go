package service

import (
	"context"

	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	outboxUtils "github.com/sakashimaa/ferreteria-checkout/pkg/outbox/utils"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/domain"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/infrastructure/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationService struct {
	emailSender email.Sender
	logger      *zap.Logger
	pool        outboxUtils.TxBeginner
	tracer      trace.Tracer
}

func NewNotificationService(emailSender email.Sender, logger *zap.Logger, pool outboxUtils.TxBeginner) *NotificationService {
	return &NotificationService{
		emailSender: emailSender,
		logger:      logger,
		pool:        pool,
		tracer:      otel.Tracer("notification-service"),
	}
}

func (s *NotificationService) HandlePurchaseCompleted(ctx context.Context, eventID int64, event domain.PurchaseCompleted) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandlePurchaseCompleted")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("purchase_id", event.PurchaseID),
	)

	if event.Email == "" {
		mylogger.Warn(ctx, s.logger, "Purchase has no recipient, skipping receipt", zap.Int64("purchase_id", event.PurchaseID))
		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func(ctx context.Context) error {
		return s.emailSender.SendPurchaseReceipt(ctx, event)
	})
}

func (s *NotificationService) HandlePaymentRejected(ctx context.Context, eventID int64, event domain.PaymentRejected) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandlePaymentRejected")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("buy_order", event.BuyOrder),
	)

	if event.Email == "" {
		mylogger.Warn(ctx, s.logger, "Rejected payment has no recipient, skipping", zap.String("buy_order", event.BuyOrder))
		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func(ctx context.Context) error {
		return s.emailSender.SendPaymentRejected(ctx, event)
	})
}
