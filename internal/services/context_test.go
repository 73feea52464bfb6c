package services_test

import (
	"context"
	"testing"

	"nfewatch/internal/services"
)

func TestRecordRunContext(t *testing.T) {
	tick := services.WithRequestID(context.Background(), "tick-7f3a")
	run := services.WithStage(services.WithRecordID(tick, 42), "relocate")

	if id, ok := services.RecordIDFromContext(run); !ok || id != 42 {
		t.Fatalf("unexpected record id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(run); !ok || rid != "tick-7f3a" {
		t.Fatalf("record run should inherit the tick request id, got %v %v", rid, ok)
	}

	watch := services.WithStage(run, "watch")
	if stage, _ := services.StageFromContext(watch); stage != "watch" {
		t.Fatalf("expected inner stage to win, got %q", stage)
	}
	if stage, _ := services.StageFromContext(run); stage != "relocate" {
		t.Fatalf("parent stage must be unchanged, got %q", stage)
	}
}

func TestEmptyValuesLeaveContextUntouched(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.RecordIDFromContext(ctx); ok {
		t.Fatal("expected no record id")
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id")
	}
}
