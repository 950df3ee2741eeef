// Package worker executes decoded jobs on a bounded pool of goroutines.
//
// Submit never blocks: accepted jobs join an in-memory ready list. Jobs that
// share a serialization key (a comic id, or a filename for imports) wait in a
// per-key list until the earlier job finishes, so at most one job per key is
// in flight. Each execution commits its catalog writes, follow-on enqueues
// and the completion of its queue record in one transaction; a failure rolls
// everything back and marks the record failed.
//
// The runtime owns a Signal that is raised after every job outcome and every
// enqueue. Status pollers block on it with a timeout instead of polling.
package worker
