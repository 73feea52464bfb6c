// Package journal keeps a local SQLite history of terminal record outcomes:
// completions, exhausted retries, malformed keys and watch timeouts.
//
// The record store only knows pending and completed, so failures and timeouts
// would otherwise be visible only in logs. The journal backs the status
// surfaces (`nfewatch outcomes`, GET /api/outcomes) and is pruned by
// journal.retention_days.
package journal
