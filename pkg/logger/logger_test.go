// pkg/logger/logger_test.go
package logger_test

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := logger.New(logger.Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestNew_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		for _, dev := range []bool{true, false} {
			if _, err := logger.New(logger.Config{Level: lvl, DevMode: dev}); err != nil {
				t.Errorf("level %q dev=%v: %v", lvl, dev, err)
			}
		}
	}
}

func TestWithContext_AddsIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := logger.FromZap(zap.New(core))

	ctx := logger.ContextWithTraceID(context.Background(), "trace-123")
	ctx = logger.ContextWithRequestID(ctx, "req-456")
	l.WithContext(ctx).Named("conn").Info("frame")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "trace-123" || fields["request_id"] != "req-456" {
		t.Errorf("unexpected fields %v", fields)
	}
	if entries[0].LoggerName != "conn" {
		t.Errorf("logger name = %q", entries[0].LoggerName)
	}
}

func TestWithContext_EmptyReturnsSame(t *testing.T) {
	l := logger.NewNop()
	if l.WithContext(context.Background()) != l {
		t.Error("expected same logger for empty context")
	}
}

func TestSync_NoPanic(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "info", DevMode: true})
	l.Sync()
	logger.NewNop().Sync()
}
