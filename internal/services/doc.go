// Package services defines shared helpers consumed by the workflow executor,
// the scheduler and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, workflow steps, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (retryable vs permanent) with errors.Is.
package services
