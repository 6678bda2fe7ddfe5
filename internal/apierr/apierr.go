// Package apierr defines the error taxonomy of the service: validation,
// auth, forbidden, not_found, conflict, runtime, circuit_open,
// persistence, and judge_parse errors, each mapped to an HTTP status and
// surfaced without stack traces.
package apierr

import "fmt"

// Kind is one category of the error taxonomy.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindAuth        Kind = "auth_error"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindRuntime     Kind = "runtime_error"
	KindCircuitOpen Kind = "circuit_open"
	KindPersistence Kind = "persistence_error"
	KindJudgeParse  Kind = "judge_parse_error"
)

// Error is a typed, taxonomy-tagged error. The Message is user-visible;
// Err, when present, is wrapped for %w unwrapping but never rendered to
// callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error's Kind to its corresponding HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindAuth:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindRuntime, KindCircuitOpen, KindJudgeParse:
		return 500
	case KindPersistence:
		return 500
	default:
		return 500
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Auth(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(perm string) *Error {
	return &Error{Kind: KindForbidden, Message: "permission denied: " + perm}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Runtime(err error, format string, args ...any) *Error {
	return &Error{Kind: KindRuntime, Message: fmt.Sprintf(format, args...), Err: err}
}

func CircuitOpen(format string, args ...any) *Error {
	return &Error{Kind: KindCircuitOpen, Message: fmt.Sprintf(format, args...)}
}

func Persistence(err error, format string, args ...any) *Error {
	return &Error{Kind: KindPersistence, Message: fmt.Sprintf(format, args...), Err: err}
}

func JudgeParse(format string, args ...any) *Error {
	return &Error{Kind: KindJudgeParse, Message: fmt.Sprintf(format, args...)}
}
