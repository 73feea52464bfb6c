// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates scheduler, workflow, journal and record store
// models into transport-friendly DTOs so clients do not couple to internal
// types.
//
// # Key Types
//
// DaemonStatus: process details, monitor state, store connectivity and
// outcome counts.
//
// RunningTask / WaitingFile: executor runs in progress and processed
// artifacts still awaited.
//
// Outcome: a journaled terminal result for a record.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Durations are exposed as integer
// milliseconds and timestamps as RFC3339 with milliseconds.
package api
