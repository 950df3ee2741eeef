// Package queue persists pipeline task records in SQLite and exposes the
// claim/lease protocol the dispatcher uses to hand them to workers.
//
// A Record is a type tag plus an ordered string property bag. Records are
// inserted by Enqueue, reserved by Claim for a lease period, and deleted by
// Complete inside the transaction that commits the job's work. Failed records
// stay in the table with their error so operators can inspect and retry them.
// Records are delivered at least once: a claim that is never completed
// becomes claimable again when its lease expires.
//
// Bind a Store to a transaction with WithTx so enqueue and completion commit
// atomically with catalog writes.
package queue
