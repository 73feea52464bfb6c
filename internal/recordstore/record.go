package recordstore

import (
	"context"
	"time"
)

// Status is the lifecycle state of a record in the store.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Record is one document-processing record. ExternalKey is the 44-character
// access key that names the artifact file.
type Record struct {
	ID          int64     `json:"id"`
	ExternalKey string    `json:"external_key"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Stats summarizes record counts by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// TestRecordRequest is the payload for inserting a diagnostic record.
type TestRecordRequest struct {
	ExternalKey string `json:"external_key"`
}

// Store is the subset of the record store used by the scheduler and executor.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkCompleted(ctx context.Context, id int64) error
}
