// Package main hosts the nfewatch CLI entrypoint and command graph.
//
// The Cobra command tree launches and stops the daemon process, and
// translates the remaining invocations into IPC calls against the running
// daemon: monitor controls, task and outcome listings, diagnostic record
// insertion and log tailing. Configuration scaffolding runs locally.
package main
