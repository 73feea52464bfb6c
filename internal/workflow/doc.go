// Package workflow moves pending records through the artifact hand-off.
//
// The Executor derives the issuer's entity folder from a record's access key,
// relocates the XML artifact from the shared source directory into that
// folder, and registers a watch entry for the processed copy the downstream
// processor writes under the folder's processed subdirectory. A periodic scan
// completes the record in the store once the processed artifact carries an
// authorization marker, or drops the entry after the processing timeout.
//
// Failures are retried a bounded number of times with a fixed delay.
// Malformed keys fail immediately. Terminal outcomes are journaled and
// optionally published as notifications.
package workflow
