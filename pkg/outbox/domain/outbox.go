package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MaxPublishAttempts is how many failed publishes an event survives before it is no longer claimed.
const MaxPublishAttempts = 10

type OutboxEvent struct {
	ID            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Headers       json.RawMessage `db:"headers"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// NewEvent wraps payload into the {"event", "payload"} envelope consumers expect.
func NewEvent(aggregateType, aggregateID, eventType, topic string, payload any) (*OutboxEvent, error) {
	envelope := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Topic:         topic,
	}, nil
}

// CaptureTrace stores the propagation headers of the span in ctx, so the event is
// published under the request that produced it. Without a valid span it is a no-op.
func (e *OutboxEvent) CaptureTrace(ctx context.Context) {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return
	}

	raw, err := json.Marshal(carrier)
	if err != nil {
		return
	}
	e.Headers = raw
}

// TraceContext restores the span context captured by CaptureTrace on top of ctx.
func (e *OutboxEvent) TraceContext(ctx context.Context) context.Context {
	if len(e.Headers) == 0 {
		return ctx
	}

	carrier := propagation.MapCarrier{}
	if err := json.Unmarshal(e.Headers, &carrier); err != nil {
		return ctx
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
