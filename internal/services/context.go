package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	jobKindKey   contextKey = "job_kind"
	comicIDKey   contextKey = "comic_id"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with the queue task identifier.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the queue task identifier if present.
func TaskIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(taskIDKey).(int64)
	return id, ok
}

// WithJobKind annotates context with the job variant name.
func WithJobKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKindKey, kind)
}

// JobKindFromContext returns the job variant name if present.
func JobKindFromContext(ctx context.Context) (string, bool) {
	kind, ok := ctx.Value(jobKindKey).(string)
	return kind, ok && kind != ""
}

// WithComicID annotates context with the catalog comic identifier.
func WithComicID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, comicIDKey, id)
}

// ComicIDFromContext extracts the comic identifier if present.
func ComicIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(comicIDKey).(int64)
	return id, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
