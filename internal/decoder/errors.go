package decoder

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLog means the file held no encrypted lines at all.
	ErrEmptyLog = errors.New("log file contains no encrypted entries")
	// ErrDecrypt marks a line that could not be decoded or authenticated.
	ErrDecrypt = errors.New("cannot decrypt log entry")
	// ErrNoTimestamps means no identity or answer lines survived filtering.
	ErrNoTimestamps = errors.New("log contains no timestamped entries")
	// ErrBadTimestamp marks a retained line whose trailing field is not a timestamp.
	ErrBadTimestamp = errors.New("invalid timestamp")
	// ErrMalformed marks a retained line with too few fields.
	ErrMalformed = errors.New("malformed log entry")
)

// LineError ties a failure to a 1-based line of the log file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// MissingFieldError reports a required identity field absent from the log.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q missing from log", e.Field)
}

// AssignmentMismatchError reports a log recorded for a different assignment.
type AssignmentMismatchError struct {
	Expected string
	Got      string
}

func (e *AssignmentMismatchError) Error() string {
	return fmt.Sprintf("log is for assignment %q, expected %q", e.Got, e.Expected)
}
