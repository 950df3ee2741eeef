package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrArchive       = errors.New("archive error")
	ErrFilesystem    = errors.New("filesystem error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransaction   = errors.New("transaction error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes job context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, job, operation, message string, err error) error {
	detail := buildDetail(job, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error to a short label for logs and queue listings.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrArchive):
		return "archive"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransaction):
		return "transaction"
	default:
		return "transient"
	}
}

// ErrorHint suggests the next operator step for a failed job.
func ErrorHint(err error) string {
	switch FailureKind(err) {
	case "archive":
		return "verify the archive opens and is not truncated, then retry the task"
	case "filesystem":
		return "check file permissions and free space, then retry the task"
	case "validation", "configuration":
		return "fix the request or configuration and enqueue the task again"
	case "not_found":
		return "the comic or file no longer exists; clear the failed task"
	case "transaction":
		return "check database health with 'folio queue health'"
	default:
		return "retry the task with 'folio queue retry'"
	}
}

func buildDetail(job, operation, message string) string {
	parts := make([]string, 0, 3)
	if job = strings.TrimSpace(job); job != "" {
		parts = append(parts, job)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
