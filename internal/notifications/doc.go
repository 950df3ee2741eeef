// Package notifications publishes pipeline events to ntfy.
//
// NewService returns a no-op Service when no topic is configured, so callers
// never need to check whether delivery is enabled.
package notifications
