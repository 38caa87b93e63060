// Package notifications pushes recorder events to ntfy.
//
// The topic URL comes from the [notifications] section. Without a topic the
// service is a no-op, so callers never need to check whether notifications
// are enabled. Per-event switches suppress note and failure messages
// individually.
package notifications
