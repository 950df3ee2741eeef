// Command folio is the command line client for the folio comic library.
//
// Import, queue and status commands talk to a running daemon over its HTTP
// API and fall back to the database when the daemon is down. Comic actions
// need the daemon because they read the catalog and validate targets before
// enqueueing. "folio daemon" runs the daemon in the foreground; "folio start"
// and "folio stop" manage a background one.
package main
