// Package workflow drives stored task records into the worker runtime.
//
// The Dispatcher is a self-rescheduling loop. Each cycle asks the runtime for
// free capacity, claims up to that many of the oldest pending records under a
// lease, decodes them and submits the decoded jobs. A record that fails to
// decode is marked failed without affecting its siblings. A full batch
// triggers the next cycle immediately; otherwise the loop sleeps for the poll
// interval or until Wake is called.
package workflow
