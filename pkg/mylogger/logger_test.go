package mylogger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfo_AddsTraceIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	Info(ctx, logger, "purchase created", zap.Int64("purchase_id", 7))

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	require.Equal(t, int64(7), fields["purchase_id"])
	require.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	require.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestWarn_WithoutSpan(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	Warn(context.Background(), logger, "cart empty")
	Debug(context.Background(), logger, "debug line")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.NotContains(t, entries[0].ContextMap(), "trace_id")
	require.Equal(t, zap.WarnLevel, entries[0].Level)
}

func TestNilLogger(t *testing.T) {
	require.NotPanics(t, func() {
		Error(context.Background(), nil, "ignored")
	})
}
