// Package api exposes the ingestion pipeline over HTTP.
//
// # Key Types
//
// Server: chi router over the dispatcher, queue and catalog. Mutating
// endpoints only enqueue task records; the worker runtime does the work.
//
// Client: HTTP client used by the folio CLI. IsUnavailable tells callers
// when to fall back to the SQLite store directly.
//
// QueueService: queue listing and maintenance shared by the server and the
// CLI store fallback.
//
// # Long polling
//
// GET /api/status?since=<RFC3339>&timeout=<duration> blocks on the runtime
// signal until comics changed after since exist or the timeout elapses. The
// response cursor is fed back as the next since value.
//
// # Design Notes
//
// DTOs use snake_case JSON tags. Timestamps are RFC3339 with nanoseconds so a
// cursor round-trips without losing updates that share a second.
package api
