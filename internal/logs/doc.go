// Package logs tails the daemon's run log for the CLI and the IPC server.
//
// Reads are offset based so followers can resume where they stopped. A
// negative offset returns the last N lines. Lines can be filtered to one
// record id, which works on the JSON run log written by the daemon.
package logs
