// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Request and response types reuse the api DTOs so the CLI renders the same
// shapes the HTTP API returns. Add new RPC endpoints here to keep both sides
// of the protocol in one place.
package ipc
