package recordstore_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nfewatch/internal/recordstore"
	"nfewatch/internal/services"
	"nfewatch/internal/testsupport"
)

func newClient(t *testing.T, baseURL string, opts ...recordstore.Option) *recordstore.Client {
	t.Helper()
	client, err := recordstore.New(baseURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := recordstore.New("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestConnectRunsSetupAfterProbe(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	client := newClient(t, fake.URL())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.Connected() {
		t.Fatal("expected client to be connected")
	}
	if fake.SetupCalls() != 1 {
		t.Fatalf("expected one setup call, got %d", fake.SetupCalls())
	}
}

func TestConnectFailureLeavesClientDisconnected(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	fake.SetHealthStatus(http.StatusServiceUnavailable)
	client := newClient(t, fake.URL())

	err := client.Connect(context.Background())
	var connErr *recordstore.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if client.Connected() {
		t.Fatal("expected client to remain disconnected")
	}
	if fake.SetupCalls() != 0 {
		t.Fatal("setup must not run after a failed probe")
	}
}

func TestFetchPendingOrdersByKeyAndHonoursLimit(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	fake.Add(testsupport.AccessKey("11111111000103", 3), recordstore.StatusPending)
	fake.Add(testsupport.AccessKey("11111111000101", 1), recordstore.StatusPending)
	fake.Add(testsupport.AccessKey("11111111000102", 2), recordstore.StatusCompleted)
	fake.Add(testsupport.AccessKey("11111111000102", 4), recordstore.StatusPending)

	client := newClient(t, fake.URL())
	records, err := client.FetchPending(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ExternalKey > records[1].ExternalKey {
		t.Fatalf("expected ascending key order, got %q then %q", records[0].ExternalKey, records[1].ExternalKey)
	}
	for _, rec := range records {
		if rec.Status != recordstore.StatusPending {
			t.Fatalf("unexpected status %q", rec.Status)
		}
	}
}

func TestFetchPendingAcceptsEnvelopeAndSortsClientSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "10" {
			t.Errorf("expected default limit 10, got %q", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"id":2,"external_key":"B","status":"pending"},{"id":1,"external_key":"A","status":"pending"}]}`))
	}))
	defer srv.Close()

	records, err := newClient(t, srv.URL).FetchPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(records) != 2 || records[0].ID != 1 || records[1].ID != 2 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestFetchPendingErrorCapturesStatusAndBody(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	fake.SetFetchStatus(http.StatusInternalServerError)

	_, err := newClient(t, fake.URL()).FetchPending(context.Background(), 10)
	var fetchErr *recordstore.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", fetchErr.StatusCode)
	}
	if !strings.Contains(fetchErr.Body, "fetch failed") {
		t.Fatalf("expected body to be captured, got %q", fetchErr.Body)
	}
	if !services.Retryable(err) {
		t.Fatal("server errors should be retryable")
	}
}

func TestFetchPendingTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url, recordstore.WithTimeout(time.Second)).FetchPending(context.Background(), 10)
	var fetchErr *recordstore.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Fatalf("expected no status for transport failure, got %d", fetchErr.StatusCode)
	}
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	id := fake.Add(testsupport.AccessKey("12345678000199", 1), recordstore.StatusPending)
	client := newClient(t, fake.URL())

	for i := 0; i < 2; i++ {
		if err := client.MarkCompleted(context.Background(), id); err != nil {
			t.Fatalf("MarkCompleted call %d: %v", i+1, err)
		}
	}
	rec, _ := fake.Record(id)
	if rec.Status != recordstore.StatusCompleted {
		t.Fatalf("expected completed, got %q", rec.Status)
	}
	if got := fake.Completions(); len(got) != 2 {
		t.Fatalf("expected two completion calls, got %v", got)
	}
}

func TestMarkCompletedUnknownID(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	err := newClient(t, fake.URL()).MarkCompleted(context.Background(), 999)

	var updateErr *recordstore.UpdateError
	if !errors.As(err, &updateErr) {
		t.Fatalf("expected UpdateError, got %v", err)
	}
	if updateErr.ID != 999 || updateErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected update error: %+v", updateErr)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestAPIKeySentAsBearer(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	fake.SetAPIKey("s3cret")

	if err := newClient(t, fake.URL()).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected unauthorized without key")
	}
	if err := newClient(t, fake.URL(), recordstore.WithAPIKey("s3cret")).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck with key: %v", err)
	}
}

func TestInsertTestRecordAndStats(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	client := newClient(t, fake.URL())
	key := testsupport.AccessKey("98765432000110", 7)

	rec, err := client.InsertTestRecord(context.Background(), recordstore.TestRecordRequest{ExternalKey: key})
	if err != nil {
		t.Fatalf("InsertTestRecord: %v", err)
	}
	if rec.ID == 0 || rec.ExternalKey != key || rec.Status != recordstore.StatusPending {
		t.Fatalf("unexpected inserted record: %+v", rec)
	}
	fake.Add(testsupport.AccessKey("98765432000110", 8), recordstore.StatusCompleted)

	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
