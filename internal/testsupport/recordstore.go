package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"nfewatch/internal/recordstore"
)

// FakeStore is an in-memory record store served over httptest.
type FakeStore struct {
	Server *httptest.Server

	mu          sync.Mutex
	records     map[int64]*recordstore.Record
	nextID      int64
	completions []int64
	setupCalls  int
	fetchCalls  int

	fetchStatus  int
	fetchDelay   time.Duration
	heldFetches  int
	healthStatus int
	markStatus   map[int64]int
	apiKey       string
}

// NewFakeStore starts a fake record store and registers cleanup.
func NewFakeStore(t testing.TB) *FakeStore {
	t.Helper()

	fs := &FakeStore{
		records:    make(map[int64]*recordstore.Record),
		nextID:     1,
		markStatus: make(map[int64]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", fs.handleHealth)
	mux.HandleFunc("POST /api/setup", fs.handleSetup)
	mux.HandleFunc("GET /api/records/pending", fs.handlePending)
	mux.HandleFunc("PUT /api/records/{id}/status", fs.handleStatus)
	mux.HandleFunc("POST /api/records/test", fs.handleInsert)
	mux.HandleFunc("GET /api/stats", fs.handleStats)
	fs.Server = httptest.NewServer(fs.authorize(mux))
	t.Cleanup(fs.Server.Close)
	return fs
}

// SetFetchStatus fails pending fetches with status (0 restores success).
func (fs *FakeStore) SetFetchStatus(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.fetchStatus = status
}

// SetFetchDelay holds every pending fetch for d before answering.
func (fs *FakeStore) SetFetchDelay(d time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.fetchDelay = d
}

// HeldFetches reports how many pending fetches entered the SetFetchDelay hold.
func (fs *FakeStore) HeldFetches() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.heldFetches
}

// SetHealthStatus fails health probes with status (0 restores success).
func (fs *FakeStore) SetHealthStatus(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.healthStatus = status
}

// SetMarkStatus forces the mark-completed response for id (0 clears it).
func (fs *FakeStore) SetMarkStatus(id int64, status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if status == 0 {
		delete(fs.markStatus, id)
		return
	}
	fs.markStatus[id] = status
}

// SetAPIKey requires key as a bearer token on every request.
func (fs *FakeStore) SetAPIKey(key string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.apiKey = key
}

// URL returns the base URL of the fake store.
func (fs *FakeStore) URL() string {
	return fs.Server.URL
}

// Add inserts a record with the given key and status and returns its id.
func (fs *FakeStore) Add(key string, status recordstore.Status) int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := fs.nextID
	fs.nextID++
	now := time.Now().UTC()
	fs.records[id] = &recordstore.Record{ID: id, ExternalKey: key, Status: status, CreatedAt: now, UpdatedAt: now}
	return id
}

// Record returns a copy of the stored record.
func (fs *FakeStore) Record(id int64) (recordstore.Record, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.records[id]
	if !ok {
		return recordstore.Record{}, false
	}
	return *rec, true
}

// Completions returns the ids passed to mark-completed, in call order.
func (fs *FakeStore) Completions() []int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]int64(nil), fs.completions...)
}

// SetupCalls returns how many times schema setup was requested.
func (fs *FakeStore) SetupCalls() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.setupCalls
}

// FetchCalls returns how many pending fetches were served.
func (fs *FakeStore) FetchCalls() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fetchCalls
}

func (fs *FakeStore) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		key := fs.apiKey
		fs.mu.Unlock()
		if key != "" && r.Header.Get("Authorization") != "Bearer "+key {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fs *FakeStore) handleHealth(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	status := fs.healthStatus
	fs.mu.Unlock()
	if status != 0 {
		http.Error(w, "unhealthy", status)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (fs *FakeStore) handleSetup(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	fs.setupCalls++
	fs.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (fs *FakeStore) handlePending(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	status := fs.fetchStatus
	delay := fs.fetchDelay
	fs.mu.Unlock()
	if delay > 0 {
		fs.mu.Lock()
		fs.heldFetches++
		fs.mu.Unlock()
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		http.Error(w, "fetch failed", status)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	fs.mu.Lock()
	fs.fetchCalls++
	pending := make([]recordstore.Record, 0, len(fs.records))
	for _, rec := range fs.records {
		if rec.Status == recordstore.StatusPending {
			pending = append(pending, *rec)
		}
	}
	fs.mu.Unlock()
	sort.Slice(pending, func(i, j int) bool { return pending[i].ExternalKey < pending[j].ExternalKey })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	writeJSON(w, pending)
}

func (fs *FakeStore) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	var body struct {
		Status recordstore.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.completions = append(fs.completions, id)
	if status, ok := fs.markStatus[id]; ok {
		http.Error(w, "forced failure", status)
		return
	}
	rec, ok := fs.records[id]
	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	rec.Status = body.Status
	rec.UpdatedAt = time.Now().UTC()
	writeJSON(w, rec)
}

func (fs *FakeStore) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req recordstore.TestRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ExternalKey) == "" {
		http.Error(w, "external_key required", http.StatusBadRequest)
		return
	}
	id := fs.Add(req.ExternalKey, recordstore.StatusPending)
	rec, _ := fs.Record(id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (fs *FakeStore) handleStats(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var stats recordstore.Stats
	for _, rec := range fs.records {
		stats.Total++
		switch rec.Status {
		case recordstore.StatusPending:
			stats.Pending++
		case recordstore.StatusCompleted:
			stats.Completed++
		case recordstore.StatusCancelled:
			stats.Cancelled++
		}
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
