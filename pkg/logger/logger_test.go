package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ExtractsContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	ctx := WithField(context.Background(), FieldTraceID, "trace-1")
	ctx = WithField(ctx, FieldMessageID, "om_1")
	ctx = WithField(ctx, FieldWorkerID, 3)
	log.Infof(ctx, "processed %d", 1)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields[FieldTraceID] != "trace-1" || fields[FieldMessageID] != "om_1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields[FieldWorkerID] != int64(3) {
		t.Fatalf("expected worker_id 3, got %v", fields[FieldWorkerID])
	}
	if entries[0].Message != "processed 1" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
}

func TestNewZapLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := NewZapLogger("verbose")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	z := log.(*ZapLogger).Zap()
	if z.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug disabled for fallback level")
	}
	if !z.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info enabled")
	}
}
