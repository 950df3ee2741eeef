// Package jobs implements the pipeline job variants and their queue codecs.
//
// Per comic the pipeline moves Added -> Processed, optionally through
// Convert (back to Added, re-chained to Process) or Rescan, and finally
// Deleted. Every job is safe to run again after a crash: Add dedupes by
// filename and the others re-read catalog state inside their transaction.
package jobs
