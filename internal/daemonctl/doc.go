// Package daemonctl manages the nfewatch daemon process from the CLI: launch,
// readiness polling over the IPC socket, SIGTERM-then-SIGKILL stop, and the
// status snapshot shown when the daemon may not be running.
package daemonctl
