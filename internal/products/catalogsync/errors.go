package catalogsync

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// ErrAcquisition: the dump could not be fetched, opened or read.
	ErrAcquisition ErrorCode = "ACQUISITION_FAILED"
	// ErrStorageRead: existing codes or a sync state could not be loaded.
	ErrStorageRead ErrorCode = "STORAGE_READ_FAILED"
	// ErrStorageWrite: a batch upsert failed and was rolled back.
	ErrStorageWrite ErrorCode = "STORAGE_WRITE_FAILED"
	ErrCanceled     ErrorCode = "CANCELED"
)

// AppError is a run-aborting failure tagged with its category.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// RunError is returned by an aborted run. Summary holds the counters at the
// moment of failure; Committed only counts batches that were written.
type RunError struct {
	Err     error
	Summary Summary
}

func (e *RunError) Error() string {
	return fmt.Sprintf("sync %s aborted after %d processed, %d committed: %v",
		e.Summary.Flavor, e.Summary.Processed, e.Summary.Committed, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
