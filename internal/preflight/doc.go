// Package preflight provides readiness checks for the filesystem paths and
// the record store that nfewatch depends on.
//
// These checks run in two contexts:
//   - The daemon runner calls RunAll at startup and logs failures. They are
//     never fatal: the store may come up later and the scheduler reconnects.
//   - The CLI "nfewatch status" command shows the same results when the
//     daemon is not running.
//
// Optional checks are gated by their config settings.
package preflight
