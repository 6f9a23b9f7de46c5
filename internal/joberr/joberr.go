// Package joberr defines the error taxonomy shared by every pipeline stage.
// A stage failure is always one of a small set of kinds, and the kind is what
// ends up persisted as the job's error code.
package joberr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a stage failure.
type Kind string

const (
	KindInput     Kind = "input_error"
	KindConfig    Kind = "config_error"
	KindTransport Kind = "transport_error"
	KindParse     Kind = "parse_error"
	// KindInternal covers failures of our own infrastructure (store writes, encoding).
	KindInternal Kind = "internal_error"
)

// Error is the tagged error threaded through stage return values.
type Error struct {
	Kind Kind
	// Op names the step that failed (e.g. "decode pdf", "diff analysis").
	Op      string
	Message string
	Err     error
	// Retryable marks transport failures worth another attempt (network, 429, 5xx).
	Retryable bool
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input reports missing or malformed job input.
func Input(op, message string, err error) *Error {
	return &Error{Kind: KindInput, Op: op, Message: message, Err: err}
}

// Config reports a missing or invalid server-side setting.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// Transport reports a network failure or non-success upstream response.
func Transport(op, message string, err error, retryable bool) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: message, Err: err, Retryable: retryable}
}

// Parse reports model output that could not be extracted or validated.
func Parse(op, message string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Message: message, Err: err}
}

// Internal reports a failure of the pipeline's own infrastructure.
func Internal(op, message string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var je *Error
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if je, ok := As(err); ok {
		return je.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a transport failure marked retryable.
func IsRetryable(err error) bool {
	je, ok := As(err)
	return ok && je.Kind == KindTransport && je.Retryable
}

// From tags an arbitrary stage error so it can be persisted.
// Errors already tagged are returned unchanged; an expired stage deadline is a
// transport failure since the upstream did not answer in time.
func From(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if je, ok := As(err); ok {
		return je
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transport(op, "stage deadline exceeded", err, false)
	}
	return Internal(op, "", err)
}
