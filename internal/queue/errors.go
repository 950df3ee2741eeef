package queue

import "errors"

var (
	// ErrLeaseLost reports that a record is no longer claimed by the caller,
	// either because it was removed or because another owner reclaimed it.
	ErrLeaseLost = errors.New("task lease lost")
	// ErrEmptyType rejects records without a type tag.
	ErrEmptyType = errors.New("task type is required")
	// ErrDuplicateProperty rejects property bags that repeat a key.
	ErrDuplicateProperty = errors.New("duplicate task property")
)
