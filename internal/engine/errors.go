package engine

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable matches any IndexError caused by an unreadable log or
// snapshot store. Use errors.Is or IsSourceUnavailable.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrSubscriptionClosed is returned by Subscription.Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// ErrorCode categorizes index errors.
type ErrorCode string

const (
	// ErrCodeSourceUnavailable indicates the log or snapshot store could not be read.
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"

	// ErrCodeDegenerateRecord marks an accept or end for a game without an
	// invite. It is recovered from and only ever logged.
	ErrCodeDegenerateRecord ErrorCode = "DEGENERATE_RECORD"
)

// IndexError represents a failure to produce a snapshot.
type IndexError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the operation that failed, e.g. "read log".
	Op string

	// Seq is the last log position folded when the error occurred.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (seq=%d): %v", e.Code, e.Op, e.Seq, e.Err)
	}
	return fmt.Sprintf("%s: %s (seq=%d)", e.Code, e.Op, e.Seq)
}

// Unwrap returns the underlying cause.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSourceUnavailable) match by code.
func (e *IndexError) Is(target error) bool {
	return target == ErrSourceUnavailable && e.Code == ErrCodeSourceUnavailable
}

// IsSourceUnavailable returns true if the error is a source unavailable error.
// Uses errors.As to handle wrapped errors.
func IsSourceUnavailable(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeSourceUnavailable
	}
	return false
}

func sourceUnavailable(op string, seq int64, err error) *IndexError {
	return &IndexError{
		Code: ErrCodeSourceUnavailable,
		Op:   op,
		Seq:  seq,
		Err:  err,
	}
}
