package core

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. Each kind maps to one user notice and
// one HTTP status.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDecode     Kind = "decode"
	KindPayload    Kind = "payload"
	KindSubmission Kind = "submission"
	KindRender     Kind = "render"
)

// Error is a pipeline failure of a given kind.
//
// Match kinds with errors.Is against the sentinels below:
//
//	if errors.Is(err, core.ErrDecode) { ... }
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is. They carry no operation or cause.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrPayload    = &Error{Kind: KindPayload}
	ErrSubmission = &Error{Kind: KindSubmission}
	ErrRender     = &Error{Kind: KindRender}
)

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Op == "":
		return string(e.Kind) + " error"
	case e.Err == nil:
		return e.Op + ": " + string(e.Kind) + " error"
	case e.Op == "":
		return string(e.Kind) + " error: " + e.Err.Error()
	default:
		return e.Op + ": " + string(e.Kind) + " error: " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewValidationError reports a user-correctable precondition failure.
func NewValidationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// NewDecodeError wraps a failure to read the uploaded file.
func NewDecodeError(op string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

// NewPayloadError wraps a failure to encode a request for transport.
func NewPayloadError(op string, err error) error {
	return &Error{Kind: KindPayload, Op: op, Err: err}
}

// NewSubmissionError wraps a failed call to the analysis service.
func NewSubmissionError(op string, err error) error {
	return &Error{Kind: KindSubmission, Op: op, Err: err}
}

// NewRenderError wraps a failure to export a result.
func NewRenderError(op string, err error) error {
	return &Error{Kind: KindRender, Op: op, Err: err}
}

// Errorf is a shorthand for building a kinded error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
