package tests

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/ferreteria-checkout/pkg/outbox/domain"
	outboxRepository "github.com/sakashimaa/ferreteria-checkout/pkg/outbox/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func (s *CheckoutSuite) inTx(fn func(tx pgx.Tx)) {
	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(s.Ctx))
	}()

	fn(tx)
	s.Require().NoError(tx.Commit(s.Ctx))
}

func (s *CheckoutSuite) enqueue(ctx context.Context, repo *outboxRepository.OutboxRepository, aggregateID string) *domain.OutboxEvent {
	event, err := domain.NewEvent("Purchase", aggregateID, "PurchaseCompleted", "purchase_events", map[string]any{"purchase_id": 1})
	s.Require().NoError(err)

	s.inTx(func(tx pgx.Tx) {
		s.Require().NoError(repo.Enqueue(ctx, tx, event))
	})
	s.Require().NotZero(event.ID)
	return event
}

func (s *CheckoutSuite) TestOutbox_ClaimMarkAndExhaust() {
	repo := outboxRepository.NewOutboxRepository(zap.NewNop())
	first := s.enqueue(s.Ctx, repo, "10")
	second := s.enqueue(s.Ctx, repo, "11")

	s.inTx(func(tx pgx.Tx) {
		events, err := repo.ClaimPending(s.Ctx, tx, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Require().Equal(first.ID, events[0].ID)
		s.Require().Equal("10", events[0].AggregateID)
		s.Require().JSONEq(string(first.Payload), string(events[0].Payload))
		s.Require().Nil(events[0].PublishedAt)
		s.Require().Empty(events[0].Headers)

		s.Require().NoError(repo.MarkPublished(s.Ctx, tx, first.ID))

		attempts, err := repo.MarkFailed(s.Ctx, tx, second.ID, "broker unavailable")
		s.Require().NoError(err)
		s.Require().EqualValues(1, attempts)
	})

	s.inTx(func(tx pgx.Tx) {
		events, err := repo.ClaimPending(s.Ctx, tx, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Require().Equal(second.ID, events[0].ID)
		s.Require().EqualValues(1, events[0].Attempts)
		s.Require().NotNil(events[0].LastError)
		s.Require().Equal("broker unavailable", *events[0].LastError)
	})

	_, err := s.DbPool.Exec(s.Ctx, `UPDATE outbox SET attempts = $1 WHERE id = $2`, domain.MaxPublishAttempts, second.ID)
	s.Require().NoError(err)

	s.inTx(func(tx pgx.Tx) {
		events, err := repo.ClaimPending(s.Ctx, tx, 10)
		s.Require().NoError(err)
		s.Require().Empty(events)

		s.Require().ErrorIs(repo.MarkPublished(s.Ctx, tx, 999), outboxRepository.ErrEventNotFound)
		_, err = repo.MarkFailed(s.Ctx, tx, 999, "gone")
		s.Require().ErrorIs(err, outboxRepository.ErrEventNotFound)
	})
}

func (s *CheckoutSuite) TestOutbox_EnqueueStoresTraceHeaders() {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	ctx, span := tp.Tracer("checkout").Start(s.Ctx, "PlaceOrder")
	defer span.End()

	repo := outboxRepository.NewOutboxRepository(zap.NewNop())
	event := s.enqueue(ctx, repo, "10")

	var raw []byte
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT headers FROM outbox WHERE id = $1`, event.ID).Scan(&raw))

	var headers map[string]string
	s.Require().NoError(json.Unmarshal(raw, &headers))
	s.Require().Contains(headers["traceparent"], span.SpanContext().TraceID().String())
}
