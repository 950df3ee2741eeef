// Package store opens the folio SQLite database and provides the transaction
// and retry plumbing shared by the queue and catalog stores.
//
// The database runs in WAL mode with foreign keys enabled and immediate
// transactions, so concurrent workers queue on the write lock instead of
// failing on lock upgrades. Schema changes ship as numbered files under
// migrations/ and are applied in order on Open.
package store
