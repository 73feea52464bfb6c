package ipc

import "nfewatch/internal/api"

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Nfewatch"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the combined daemon, monitor and store status.
type StatusResponse = api.DaemonStatus

// MonitorRequest targets the scheduler (start, stop, restart).
type MonitorRequest struct{}

// MonitorResponse reports the effect of a monitor control.
type MonitorResponse = api.ActionResponse

// IntervalRequest changes the check interval.
type IntervalRequest = api.IntervalRequest

// InsertTestRequest inserts a diagnostic record.
type InsertTestRequest = api.InsertTestRequest

// InsertTestResponse returns the created record.
type InsertTestResponse = api.RecordResponse

// TasksRequest lists running tasks and awaited artifacts.
type TasksRequest struct{}

// TasksResponse carries running tasks and awaited artifacts.
type TasksResponse = api.TasksResponse

// OutcomesRequest filters journaled outcomes.
type OutcomesRequest struct {
	Limit int      `json:"limit"`
	Kinds []string `json:"kinds,omitempty"`
}

// OutcomesResponse carries journaled outcomes, newest first.
type OutcomesResponse = api.OutcomesResponse

// StoreStatsRequest fetches record counts from the store.
type StoreStatsRequest struct{}

// StoreStatsResponse carries record counts.
type StoreStatsResponse = api.StoreStats

// LogTailRequest reads the daemon run log.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
	RecordID   int64 `json:"record_id"`
}

// LogTailResponse carries log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification delivery.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
