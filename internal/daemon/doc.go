// Package daemon coordinates the long-running folio process.
//
// It wires configuration, the SQLite store, the job registry, the worker
// runtime and the dispatcher into a single lifecycle with flock-based locking
// to prevent multiple instances. On start the daemon hands back any claims a
// crashed predecessor left behind, reports failed preflight checks, and
// launches the lease heartbeat, the optional import watcher and the HTTP API.
//
// Keep orchestration logic here: job semantics live in jobs, scheduling in
// workflow and worker, and request handling in api.
package daemon
