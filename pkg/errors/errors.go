package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTokenizeFailed     = errors.New("tokenize failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrLockHeld           = errors.New("index write lock held")
	ErrMalformedQuery     = errors.New("malformed query")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDocumentNotFound   = errors.New("document not found")
)

// AppError attaches a human-readable message to one of the sentinel errors
// above.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IndexError reports the failure to upsert a single record.
type IndexError struct {
	RecordID int64
	Err      error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("record %d: %s", e.RecordID, e.Err.Error())
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// BatchError collects the per-record failures of a batch upsert. Records not
// listed were indexed.
type BatchError struct {
	Failures []*IndexError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d record(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// FailedIDs returns the identifiers of the records that failed, in batch order.
func (e *BatchError) FailedIDs() []int64 {
	ids := make([]int64, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.RecordID
	}
	return ids
}

// ExitCode maps an error to a process exit status for the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput):
		return 2
	case errors.Is(err, ErrLockHeld):
		return 3
	case errors.Is(err, ErrStorageUnavailable):
		return 4
	case errors.Is(err, ErrTokenizeFailed):
		return 5
	case errors.Is(err, ErrMalformedQuery):
		return 70
	default:
		return 1
	}
}
