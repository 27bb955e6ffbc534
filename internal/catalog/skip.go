package catalog

import "fmt"

// SkipReason says why a dump entry was left out of a sync run.
type SkipReason string

const (
	SkipInvalidCode   SkipReason = "invalid_code"
	SkipDuplicate     SkipReason = "duplicate_code"
	SkipNoTimestamp   SkipReason = "missing_last_modified"
	SkipModifiedToday SkipReason = "modified_today"
	SkipMalformed     SkipReason = "malformed_record"
)

// SkipError marks a record-level problem. It is counted by the caller and
// never aborts a run.
type SkipError struct {
	Code   string
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	msg := fmt.Sprintf("skip record %q: %s", e.Code, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SkipError) Unwrap() error { return e.Err }

func skip(code string, reason SkipReason, err error) *SkipError {
	return &SkipError{Code: code, Reason: reason, Err: err}
}
