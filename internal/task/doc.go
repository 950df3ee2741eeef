// Package task defines executable jobs and the registry that maps them to and
// from durable queue records.
//
// A job is an immutable value. The Registry holds one codec per job kind and
// turns a job into a queue.Record (Encode) or rebuilds a runnable job from a
// stored record (Decode). Decoding only reads: it parses properties with
// spf13/cast and checks that referenced comics still exist.
//
// Jobs run against an Env. Heavy archive and file work happens before the
// job opens its single catalog transaction with Env.Tx; the worker runtime
// completes the queue record inside that same transaction.
package task
