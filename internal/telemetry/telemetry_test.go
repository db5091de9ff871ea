package telemetry_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jensholdgaard/stackedroll-bot/internal/telemetry"
)

func TestNewNopProvider(t *testing.T) {
	p := telemetry.NewNopProvider()

	if p.TracerProvider == nil {
		t.Fatal("TracerProvider is nil")
	}
	if p.MeterProvider == nil {
		t.Fatal("MeterProvider is nil")
	}
	if p.LoggerProvider == nil {
		t.Fatal("LoggerProvider is nil")
	}
	if p.Logger == nil {
		t.Fatal("Logger is nil")
	}
}

func TestNopProvider_Shutdown(t *testing.T) {
	p := telemetry.NewNopProvider()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestLogWithTrace_NoSpan(t *testing.T) {
	logger := slog.Default()
	// Without a span in the context the logger passes through unchanged.
	if got := telemetry.LogWithTrace(context.Background(), logger); got != logger {
		t.Fatal("LogWithTrace() without a span should return the logger unchanged")
	}
}

func TestLogWithTrace_WithSpan(t *testing.T) {
	p := telemetry.NewNopProvider()
	tracer := p.TracerProvider.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	if got := telemetry.LogWithTrace(ctx, slog.Default()); got == nil {
		t.Fatal("LogWithTrace() returned nil")
	}
}
