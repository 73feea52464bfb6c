package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nfewatch/internal/journal"
)

func openTestStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.OpenPath(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []journal.Outcome{
		{RecordID: 1, ExternalKey: "K1", Kind: journal.KindCompleted, Attempts: 1, CreatedAt: base},
		{RecordID: 2, ExternalKey: "K2", Kind: journal.KindFailed, Attempts: 3, Message: "artifact missing", CreatedAt: base.Add(time.Minute)},
		{RecordID: 3, ExternalKey: "K3", Kind: journal.KindTimedOut, ArtifactPath: "/x/processed/K3.xml", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if _, err := store.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].RecordID != 3 || recent[1].RecordID != 2 {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	if recent[0].ArtifactPath != "/x/processed/K3.xml" {
		t.Fatalf("unexpected artifact path %q", recent[0].ArtifactPath)
	}
	if recent[1].Message != "artifact missing" || recent[1].Attempts != 3 {
		t.Fatalf("unexpected failed outcome %+v", recent[1])
	}

	failures, err := store.Recent(ctx, 10, journal.KindFailed, journal.KindTimedOut)
	if err != nil {
		t.Fatalf("Recent filtered: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected two failure outcomes, got %d", len(failures))
	}
}

func TestAppendRequiresKind(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Append(context.Background(), journal.Outcome{RecordID: 1}); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestCountsForRecordAndPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	_, _ = store.Append(ctx, journal.Outcome{RecordID: 7, ExternalKey: "K7", Kind: journal.KindFailed, CreatedAt: old})
	_, _ = store.Append(ctx, journal.Outcome{RecordID: 7, ExternalKey: "K7", Kind: journal.KindCompleted})
	_, _ = store.Append(ctx, journal.Outcome{RecordID: 8, ExternalKey: "K8", Kind: journal.KindMalformed})

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[journal.KindFailed] != 1 || counts[journal.KindCompleted] != 1 || counts[journal.KindMalformed] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	history, err := store.ForRecord(ctx, 7)
	if err != nil {
		t.Fatalf("ForRecord: %v", err)
	}
	if len(history) != 2 || history[0].Kind != journal.KindFailed {
		t.Fatalf("unexpected history %+v", history)
	}

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned row, got %d", removed)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := store.Append(context.Background(), journal.Outcome{RecordID: 1, ExternalKey: "K", Kind: journal.KindCompleted}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = store.Close()

	reopened, err := journal.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("expected persisted outcome, got %v (%v)", recent, err)
	}
}
