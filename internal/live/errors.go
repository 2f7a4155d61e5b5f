package live

import (
	"errors"
	"fmt"
)

// Error represents a failure detected while mirroring a collection.
//
// Errors carry structured fields so that log lines and metrics can be keyed
// by collection and record without string parsing.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Collection names the mirrored collection.
	Collection string

	// ID identifies the affected record, when there is one.
	ID string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes mirror errors.
type ErrorCode string

const (
	// ErrCodePollFailed indicates the store query behind a poll failed.
	// The watermark is left untouched and the window is retried next tick.
	ErrCodePollFailed ErrorCode = "POLL_FAILED"

	// ErrCodeMalformedRecord indicates a fetched document could not be
	// decoded, failed fix or could not be keyed. The record is skipped for
	// this pass; the watermark still moves past it.
	ErrCodeMalformedRecord ErrorCode = "MALFORMED_RECORD"

	// ErrCodeListenerPanic indicates a listener or hook panicked.
	ErrCodeListenerPanic ErrorCode = "LISTENER_PANIC"

	// ErrCodeStoreWrite indicates a write (delete) against the store failed.
	ErrCodeStoreWrite ErrorCode = "STORE_WRITE_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s/%s: %v", e.Code, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Collection, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsPollError reports whether err is a failed poll.
func IsPollError(err error) bool {
	return hasCode(err, ErrCodePollFailed)
}

// IsMalformedRecord reports whether err is a skipped malformed record.
func IsMalformedRecord(err error) bool {
	return hasCode(err, ErrCodeMalformedRecord)
}

// IsStoreWriteError reports whether err is a failed store write.
func IsStoreWriteError(err error) bool {
	return hasCode(err, ErrCodeStoreWrite)
}

func hasCode(err error, code ErrorCode) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// panicError converts a recovered panic value into an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
