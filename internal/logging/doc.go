// Package logging assembles the structured slog loggers used by the nfewatch
// daemon and CLI.
//
// It owns the console and JSON handlers, the per-run log file plumbing and the
// standardized field keys (record_id, stage, event_type, error_hint). Context
// helpers stamp log lines with the record and correlation identifiers placed
// on a context by the services package.
package logging
