// Package preflight provides readiness checks for the filesystem paths folio
// writes to.
//
// These checks run in two contexts:
//   - Convert and Export call EnsureWritable before writing a new archive so a
//     full or read-only disk fails the job before any bytes are written.
//   - The daemon logs RunAll results at startup and the status endpoint
//     reports them.
package preflight
