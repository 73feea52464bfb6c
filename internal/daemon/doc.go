// Package daemon coordinates the long-running nfewatch process.
//
// It wires the record store client, the workflow executor, the scheduler and
// the outcome journal into a single lifecycle with flock-based locking to
// prevent multiple instances. The Daemon is also the management facade: the
// HTTP API and the IPC server both call its status and control methods.
//
// Keep orchestration here. Record handling lives in workflow and polling in
// monitor.
package daemon
