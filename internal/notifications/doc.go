// Package notifications delivers ntfy push messages for record outcomes that
// need operator attention: exhausted retries, unusable keys and processed
// artifacts that never appeared. Each event can be toggled in the
// [notifications] config section; without a topic a no-op service is used.
package notifications
