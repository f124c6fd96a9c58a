package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/ferreteria-checkout/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrEventNotFound = errors.New("outbox event not found")

const lastErrorMaxLen = 1024

const eventColumns = `id, aggregate_type, aggregate_id, event_type, payload, headers,
	created_at, published_at, attempts, last_error, topic`

// OutboxRepository works only inside the caller's transaction: events are enqueued
// with the business writes they describe and claimed by the worker under row locks.
type OutboxRepository struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOutboxRepository(logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{
		logger: logger,
		tracer: otel.Tracer("pkg/outbox/repository"),
	}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.Enqueue")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_type", event.AggregateType),
		attribute.String("aggregate_id", event.AggregateID),
		attribute.String("event_type", event.EventType),
	)

	if len(event.Headers) == 0 {
		event.CaptureTrace(ctx)
	}

	query := `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, headers, topic)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Headers,
		event.Topic,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enqueue %s event: %w", event.EventType, err)
	}

	return nil
}

// ClaimPending locks up to limit unpublished events that still have attempts left.
// Rows locked by another worker are skipped.
func (r *OutboxRepository) ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]*domain.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.ClaimPending")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", limit))

	query := `
		SELECT ` + eventColumns + `
		FROM outbox
		WHERE published_at IS NULL
			AND attempts < $2
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, limit, domain.MaxPublishAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[domain.OutboxEvent])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan outbox events: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(events)))
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, tx pgx.Tx, eventID int64) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkPublished")
	defer span.End()

	span.SetAttributes(attribute.Int64("event_id", eventID))

	query := `
		UPDATE outbox
		SET published_at = NOW(),
			last_error = NULL
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark event %d published: %w", eventID, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	return nil
}

// MarkFailed records a failed publish and returns the attempts used so far.
func (r *OutboxRepository) MarkFailed(ctx context.Context, tx pgx.Tx, eventID int64, cause string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkFailed")
	defer span.End()

	if len(cause) > lastErrorMaxLen {
		cause = cause[:lastErrorMaxLen]
	}

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("outbox.error_message", cause),
	)

	query := `
		UPDATE outbox
		SET last_error = $1,
			attempts = attempts + 1
		WHERE id = $2
		RETURNING attempts
	`

	var attempts int64
	if err := tx.QueryRow(ctx, query, cause, eventID).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrEventNotFound
		}

		span.RecordError(err)
		return 0, fmt.Errorf("failed to mark event %d failed: %w", eventID, err)
	}

	return attempts, nil
}
