package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MonitorStatus summarizes scheduler state.
type MonitorStatus struct {
	Running      bool   `json:"running"`
	LastCheck    string `json:"lastCheck,omitempty"`
	Processed    int64  `json:"processed"`
	IntervalMS   int64  `json:"intervalMs"`
	RunningTasks int    `json:"runningTasks"`
	WaitingFiles int    `json:"waitingFiles"`
	LastError    string `json:"lastError,omitempty"`
}

// StoreStatus describes the record store connection.
type StoreStatus struct {
	BaseURL   string `json:"baseUrl"`
	Connected bool   `json:"connected"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	LockFilePath  string         `json:"lockFilePath"`
	JournalPath   string         `json:"journalPath,omitempty"`
	LogPath       string         `json:"logPath,omitempty"`
	Watching      bool           `json:"watching"`
	Monitor       MonitorStatus  `json:"monitor"`
	Store         StoreStatus    `json:"store"`
	OutcomeCounts map[string]int `json:"outcomeCounts,omitempty"`
}

// RunningTask describes an executor run in progress.
type RunningTask struct {
	ID          string `json:"id"`
	RecordID    int64  `json:"recordId"`
	ExternalKey string `json:"externalKey"`
	StartedAt   string `json:"startedAt"`
	ElapsedMS   int64  `json:"elapsedMs"`
	Attempt     int    `json:"attempt"`
}

// WaitingFile describes a processed artifact the daemon is waiting for.
type WaitingFile struct {
	RecordID      int64  `json:"recordId"`
	ExternalKey   string `json:"externalKey"`
	SubIdentifier string `json:"subIdentifier"`
	ExpectedPath  string `json:"expectedPath"`
	RegisteredAt  string `json:"registeredAt"`
	WaitingMS     int64  `json:"waitingMs"`
	Rejections    int    `json:"rejections,omitempty"`
}

// Outcome is a journaled terminal result.
type Outcome struct {
	ID            int64  `json:"id"`
	RecordID      int64  `json:"recordId"`
	ExternalKey   string `json:"externalKey"`
	Kind          string `json:"kind"`
	Attempts      int    `json:"attempts"`
	Message       string `json:"message,omitempty"`
	ArtifactPath  string `json:"artifactPath,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

// Record is a record store entry.
type Record struct {
	ID          int64  `json:"id"`
	ExternalKey string `json:"externalKey"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// StoreStats mirrors record counts reported by the store.
type StoreStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// ActionResponse acknowledges a control request.
type ActionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// IntervalRequest changes the monitor check interval.
type IntervalRequest struct {
	IntervalMS int `json:"intervalMs"`
}

// InsertTestRequest asks the store to create a diagnostic record.
type InsertTestRequest struct {
	ExternalKey string `json:"externalKey"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Record Record `json:"record"`
}

// TasksResponse wraps running tasks and awaited artifacts.
type TasksResponse struct {
	Tasks    []RunningTask `json:"tasks"`
	Waiting  []WaitingFile `json:"waiting"`
	TimedOut []WaitingFile `json:"timedOut,omitempty"`
}

// OutcomesResponse wraps journaled outcomes, newest first.
type OutcomesResponse struct {
	Outcomes []Outcome `json:"outcomes"`
}

// ErrorResponse is the body of a failed HTTP API call.
type ErrorResponse struct {
	Error string `json:"error"`
}
