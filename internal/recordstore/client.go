package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 4 << 10
	pendingPath     = "/api/records/pending"
	recordsPath     = "/api/records/"
	testRecordPath  = "/api/records/test"
	healthPath      = "/api/health"
	setupPath       = "/api/setup"
	statsPath       = "/api/stats"
	completedStatus = `{"status":"completed"}`
)

// Client talks to the remote record store over HTTP/JSON.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	connected  atomic.Bool
}

var _ Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a record store client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("record store base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse record store url: %w", err)
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Connect probes the store and runs the idempotent schema setup. On failure
// the client stays disconnected and the error is a *ConnectivityError.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.HealthCheck(ctx); err != nil {
		c.connected.Store(false)
		return &ConnectivityError{Endpoint: c.baseURL, Err: err}
	}
	if _, err := c.do(ctx, http.MethodPost, setupPath, nil); err != nil {
		c.connected.Store(false)
		return &ConnectivityError{Endpoint: c.baseURL, Err: err}
	}
	c.connected.Store(true)
	return nil
}

// Connected reports whether the last Connect succeeded.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// HealthCheck performs a lightweight probe against the store.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return &FetchError{Operation: "health", StatusCode: statusOf(err), Body: bodyOf(err), Err: err}
	}
	return nil
}

// FetchPending returns up to limit pending records ordered by external key.
func (c *Client) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	path := pendingPath + "?limit=" + strconv.Itoa(limit)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &FetchError{Operation: "fetch pending", StatusCode: statusOf(err), Body: bodyOf(err), Err: err}
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, &FetchError{Operation: "fetch pending", Err: err}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ExternalKey < records[j].ExternalKey
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// MarkCompleted transitions a record to completed. Repeating the call for an
// already completed record succeeds; an unknown id yields an *UpdateError
// whose StatusCode is 404.
func (c *Client) MarkCompleted(ctx context.Context, id int64) error {
	path := recordsPath + strconv.FormatInt(id, 10) + "/status"
	if _, err := c.do(ctx, http.MethodPut, path, []byte(completedStatus)); err != nil {
		return &UpdateError{ID: id, StatusCode: statusOf(err), Body: bodyOf(err), Err: err}
	}
	return nil
}

// InsertTestRecord asks the store to create a pending diagnostic record.
func (c *Client) InsertTestRecord(ctx context.Context, req TestRecordRequest) (Record, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Record{}, fmt.Errorf("encode test record: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, testRecordPath, payload)
	if err != nil {
		return Record{}, &FetchError{Operation: "insert test record", StatusCode: statusOf(err), Body: bodyOf(err), Err: err}
	}
	var record Record
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &record); err != nil {
			return Record{}, &FetchError{Operation: "insert test record", Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	if record.ExternalKey == "" {
		record.ExternalKey = req.ExternalKey
	}
	return record, nil
}

// Stats returns record counts by status.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	body, err := c.do(ctx, http.MethodGet, statsPath, nil)
	if err != nil {
		return Stats{}, &FetchError{Operation: "stats", StatusCode: statusOf(err), Body: bodyOf(err), Err: err}
	}
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return Stats{}, &FetchError{Operation: "stats", Err: fmt.Errorf("decode response: %w", err)}
	}
	if stats.Total == 0 {
		stats.Total = stats.Pending + stats.Completed + stats.Cancelled
	}
	return stats, nil
}

// statusError carries a non-2xx response through do.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func bodyOf(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return se.body
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// decodeRecords accepts either a bare JSON array or an object with a
// "records" field.
func decodeRecords(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}
	var envelope struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return envelope.Records, nil
}
