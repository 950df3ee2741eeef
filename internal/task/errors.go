package task

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTaskType reports a record whose kind has no registered codec.
	ErrUnknownTaskType = errors.New("unknown task type")
	// ErrTxReused reports a job that opened its transaction twice.
	ErrTxReused = errors.New("job transaction already used")
	// ErrResolve reports a reference that could not be checked right now. The
	// record itself may be fine and is worth retrying.
	ErrResolve = errors.New("resolve task reference")
)

// DecodeError reports a record that cannot be rebuilt into a job.
type DecodeError struct {
	Kind     string
	RecordID int64
	Key      string
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s task %d", e.Kind, e.RecordID)
	if e.Key != "" {
		msg += fmt.Sprintf(": property %q", e.Key)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// JobError is a domain failure raised while running a job. Its writes were
// rolled back and the record is kept.
type JobError struct {
	Kind        string
	Description string
	Err         error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Description, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// AsJobError wraps err for job unless it already is a JobError.
func AsJobError(job Job, err error) error {
	if err == nil {
		return nil
	}
	var je *JobError
	if errors.As(err, &je) {
		return err
	}
	return &JobError{Kind: job.Kind(), Description: job.Description(), Err: err}
}
