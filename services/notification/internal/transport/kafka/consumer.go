package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	generalDomain "github.com/sakashimaa/ferreteria-checkout/pkg/domain"
	"github.com/sakashimaa/ferreteria-checkout/pkg/kafka"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/domain"
	"go.uber.org/zap"
)

type EventHandler interface {
	HandlePurchaseCompleted(ctx context.Context, eventID int64, event domain.PurchaseCompleted) error
	HandlePaymentRejected(ctx context.Context, eventID int64, event domain.PaymentRejected) error
}

type Consumer struct {
	handler EventHandler
	logger  *zap.Logger
}

func NewConsumer(handler EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{generalDomain.PurchaseEventsTopic},
		c.ProcessMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

// ProcessMessage returns nil for messages that can never succeed so the offset still advances.
func (c *Consumer) ProcessMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var raw domain.RawEvent
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	if raw.EventID == 0 {
		mylogger.Warn(ctx, c.logger, "Envelope without event id, skipping", zap.String("event", raw.Event))
		return nil
	}

	switch raw.Event {
	case generalDomain.EventPurchaseCompleted:
		var event domain.PurchaseCompleted
		if err := json.Unmarshal(raw.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing purchase event", zap.Int64("event_id", raw.EventID), zap.Error(err))
			return nil
		}

		return c.handler.HandlePurchaseCompleted(ctx, raw.EventID, event)
	case generalDomain.EventPaymentRejected:
		var event domain.PaymentRejected
		if err := json.Unmarshal(raw.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing rejection event", zap.Int64("event_id", raw.EventID), zap.Error(err))
			return nil
		}

		return c.handler.HandlePaymentRejected(ctx, raw.EventID, event)
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event", raw.Event))
	}

	return nil
}
