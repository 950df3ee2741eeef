// Package services holds the error markers and context annotations shared by
// the pipeline packages.
//
// Job code wraps failures with Wrap so the worker runtime can classify them
// for logs and operator hints without inspecting message text. Context
// helpers carry task, job kind, comic, and request identifiers so loggers
// derived from a context tag every line consistently.
package services
