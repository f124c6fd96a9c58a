package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, eventID int64, cause string) (int64, error)
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic string, key string, message interface{}) error
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Option func(*OutboxProcessor)

func WithBatchSize(n int) Option {
	return func(p *OutboxProcessor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *OutboxProcessor) {
		if d > 0 {
			p.interval = d
		}
	}
}

type OutboxProcessor struct {
	pool          TxBeginner
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	pool TxBeginner,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	opts ...Option,
) *OutboxProcessor {
	p := &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     50,
		interval:      500 * time.Millisecond,
		tracer:        otel.Tracer("outbox-worker"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start polls the outbox until ctx is done.
func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(
				context.WithoutCancel(ctx),
				p.logger,
				"Outbox processor stopping",
			)

			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
				zap.String("method_name", "ProcessBatch"),
			)
		}
	}()

	events, err := p.repo.ClaimPending(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	span.SetAttributes(attribute.Int("outbox.batch", len(events)))
	mylogger.Debug(
		ctx,
		p.logger,
		"Processing outbox events",
		zap.Int("count", len(events)),
	)

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			if dbErr := p.markFailed(ctx, tx, event, err); dbErr != nil {
				return published, dbErr
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, tx, event.ID); err != nil {
			mylogger.Error(
				ctx,
				p.logger,
				"Outbox worker failed to mark event published",
				zap.Int64("id", event.ID),
				zap.Error(err),
			)

			return published, fmt.Errorf("failed to mark event %d published: %w", event.ID, err)
		}

		published++
		mylogger.Debug(
			ctx,
			p.logger,
			"outbox worker event published successfully",
			zap.Int64("id", event.ID),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return published, fmt.Errorf("error committing outbox batch: %w", err)
	}

	return published, nil
}

// publish sends the envelope with event_id added. The message continues the trace of the
// request that enqueued it and links back to the batch span.
func (p *OutboxProcessor) publish(ctx context.Context, event *domain.OutboxEvent) error {
	var envelope map[string]any
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	envelope["event_id"] = event.ID

	pubCtx, span := p.tracer.Start(
		event.TraceContext(ctx),
		"OutboxProcessor.Publish",
		trace.WithLinks(trace.LinkFromContext(ctx)),
		trace.WithAttributes(
			attribute.Int64("outbox.event_id", event.ID),
			attribute.String("outbox.event_type", event.EventType),
		),
	)
	defer span.End()

	if err := p.kafkaProducer.ProduceMessage(pubCtx, event.Topic, event.AggregateID, envelope); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (p *OutboxProcessor) markFailed(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent, cause error) error {
	attempts, err := p.repo.MarkFailed(ctx, tx, event.ID, cause.Error())
	if err != nil {
		return fmt.Errorf("failed to mark event %d failed: %w", event.ID, err)
	}

	fields := []zap.Field{
		zap.Int64("id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Int64("attempts", attempts),
		zap.Error(cause),
	}

	if attempts >= domain.MaxPublishAttempts {
		mylogger.Error(ctx, p.logger, "Outbox event exhausted its publish attempts", fields...)
		return nil
	}

	mylogger.Warn(ctx, p.logger, "Outbox event publish failed, will retry", fields...)
	return nil
}
