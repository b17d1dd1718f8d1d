package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies lifecycle failures for the HTTP boundary
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindPartialFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindPartialFailure:
		return "partial_failure"
	default:
		return "upstream"
	}
}

// Error is a classified lifecycle failure. Message is safe to show callers.
type Error struct {
	Kind    ErrorKind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthenticated reports a request without a valid session
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// Forbidden reports a caller whose role may not perform the action
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// NotFound reports a missing row, or one the caller may not see
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Validation reports bad input
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Upstream wraps a failure of the store or the identity provider
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// PartialFailure reports a saga that could not be rolled back
func PartialFailure(msg string, err error) *Error {
	return &Error{Kind: KindPartialFailure, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are upstream failures.
func KindOf(err error) ErrorKind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindUpstream
}

// IsNotFound reports whether err is a lifecycle NotFound
func IsNotFound(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Kind == KindNotFound
}
