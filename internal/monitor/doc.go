// Package monitor runs the periodic record-store poll.
//
// The Scheduler fetches pending records on a fixed interval and hands them to
// the workflow executor one at a time. It can be started, stopped, restarted
// and re-timed while the daemon runs; ticks never overlap.
package monitor
