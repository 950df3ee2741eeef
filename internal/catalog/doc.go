// Package catalog stores comic records, their pages, reading lists, and
// pipeline stage markers in the shared SQLite database.
//
// Lookups for missing records return (nil, nil) so callers can treat absence
// as a normal outcome. Bind a Store to a job transaction with WithTx so catalog
// writes commit or roll back together with the queue completion.
package catalog
