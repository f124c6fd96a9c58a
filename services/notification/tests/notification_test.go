package tests

import (
	"context"
	"time"

	generalDomain "github.com/sakashimaa/ferreteria-checkout/pkg/domain"
	"github.com/sakashimaa/ferreteria-checkout/pkg/kafka"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/domain"
	notificationKafka "github.com/sakashimaa/ferreteria-checkout/services/notification/internal/transport/kafka"
	"go.uber.org/zap"
)

func (s *NotificationSuite) TestPurchaseReceipt_SentOncePerEvent() {
	event := domain.PurchaseCompleted{PurchaseID: 1, Email: "ana@ferreteria.cl", Total: "7990.00"}

	s.Require().NoError(s.Service.HandlePurchaseCompleted(s.Ctx, 100, event))
	s.Require().NoError(s.Service.HandlePurchaseCompleted(s.Ctx, 100, event))

	s.Require().Equal(1, s.Sender.receiptCount())
	s.Require().True(s.processed(100))
}

func (s *NotificationSuite) TestPurchaseReceipt_RetriesTransientFailure() {
	s.Sender.failures = 1

	err := s.Service.HandlePurchaseCompleted(s.Ctx, 101, domain.PurchaseCompleted{PurchaseID: 2, Email: "ana@ferreteria.cl"})
	s.Require().NoError(err)
	s.Require().Equal(1, s.Sender.receiptCount())
	s.Require().True(s.processed(101))
}

func (s *NotificationSuite) TestPaymentRejected_FailureLeavesEventUnclaimed() {
	s.Sender.failures = 3

	err := s.Service.HandlePaymentRejected(s.Ctx, 102, domain.PaymentRejected{BuyOrder: "orden-1", Email: "ana@ferreteria.cl"})
	s.Require().ErrorIs(err, errSMTP)
	s.Require().False(s.processed(102))

	s.Require().NoError(s.Service.HandlePaymentRejected(s.Ctx, 102, domain.PaymentRejected{BuyOrder: "orden-1", Email: "ana@ferreteria.cl"}))
	s.Require().Len(s.Sender.rejections, 1)
	s.Require().True(s.processed(102))
}

func (s *NotificationSuite) TestMissingRecipientIsSkipped() {
	s.Require().NoError(s.Service.HandlePurchaseCompleted(s.Ctx, 103, domain.PurchaseCompleted{PurchaseID: 3}))
	s.Require().Zero(s.Sender.receiptCount())
	s.Require().False(s.processed(103))
}

func (s *NotificationSuite) TestConsumer_ReceivesOutboxEnvelope() {
	producer, err := kafka.NewProducer(s.KafkaBrokers, zap.NewNop())
	s.Require().NoError(err)
	defer func() {
		_ = producer.Close()
	}()

	envelope := generalDomain.EventEnvelope[generalDomain.PurchaseCompletedEvent]{
		EventID: 200,
		Event:   generalDomain.EventPurchaseCompleted,
		Payload: generalDomain.PurchaseCompletedEvent{
			PurchaseID: 9,
			Email:      "ana@ferreteria.cl",
			Total:      "15980.00",
		},
	}

	// Produced twice: the second delivery must be deduplicated.
	s.Require().NoError(producer.ProduceMessage(s.Ctx, generalDomain.PurchaseEventsTopic, "9", envelope))
	s.Require().NoError(producer.ProduceMessage(s.Ctx, generalDomain.PurchaseEventsTopic, "9", envelope))

	ctx, cancel := context.WithCancel(s.Ctx)
	done := make(chan error, 1)
	go func() {
		consumer := notificationKafka.NewConsumer(s.Service, zap.NewNop())
		done <- consumer.Start(ctx, s.KafkaBrokers, "notification-test-group")
	}()

	s.Require().Eventually(func() bool {
		return s.processed(200)
	}, waitFor, 200*time.Millisecond)

	cancel()
	s.Require().NoError(<-done)

	s.Require().Equal(1, s.Sender.receiptCount())
	s.Require().Equal(int64(9), s.Sender.receipts[0].PurchaseID)
}
