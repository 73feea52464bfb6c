package journal

import "time"

// Kind classifies a terminal outcome for a record run or watch entry.
type Kind string

const (
	// KindCompleted means the processed artifact was authorized and the record marked completed.
	KindCompleted Kind = "completed"
	// KindFailed means the executor exhausted its retries.
	KindFailed Kind = "failed"
	// KindMalformed means the external key could not yield an entity identifier.
	KindMalformed Kind = "malformed"
	// KindTimedOut means the processed artifact never appeared within the processing timeout.
	KindTimedOut Kind = "timed_out"
)

// Kinds lists every outcome kind in display order.
var Kinds = []Kind{KindCompleted, KindFailed, KindMalformed, KindTimedOut}

// Outcome is one journal row.
type Outcome struct {
	ID            int64     `json:"id"`
	RecordID      int64     `json:"record_id"`
	ExternalKey   string    `json:"external_key"`
	Kind          Kind      `json:"kind"`
	Attempts      int       `json:"attempts"`
	Message       string    `json:"message,omitempty"`
	ArtifactPath  string    `json:"artifact_path,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
