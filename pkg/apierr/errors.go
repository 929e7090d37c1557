// Package apierr defines the error taxonomy shared by the orchestrator,
// content store, and statistics pipeline. Error kinds are semantic, not
// type-bound: callers compare against Kind, not against a Go type switch.
package apierr

import "fmt"

// Kind names a class of error with a defined user-visibility and retry policy.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindBadCursor          Kind = "bad_cursor"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindBackendRejected    Kind = "backend_rejected"
	KindTimeout            Kind = "timeout"
	KindCancelled          Kind = "cancelled"
	KindOutputMissing      Kind = "output_missing"
	KindInternal           Kind = "internal"
)

// Error is the canonical error type surfaced across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As keep working
// against sentinel causes (e.g. context.DeadlineExceeded under a timeout).
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails returns a copy of the error with the given details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Validation(message string) *Error         { return newErr(KindValidation, message) }
func NotFound(message string) *Error           { return newErr(KindNotFound, message) }
func BadCursor(message string) *Error          { return newErr(KindBadCursor, message) }
func BackendUnavailable(message string) *Error { return newErr(KindBackendUnavailable, message) }
func BackendRejected(message string) *Error    { return newErr(KindBackendRejected, message) }
func Timeout(message string) *Error            { return newErr(KindTimeout, message) }
func Cancelled(message string) *Error          { return newErr(KindCancelled, message) }
func OutputMissing(message string) *Error      { return newErr(KindOutputMissing, message) }
func Internal(message string) *Error           { return newErr(KindInternal, message) }

// HTTPStatus returns the status code associated with a Kind per the error
// handling design; unknown kinds map to 500.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation, KindBadCursor:
		return 400
	case KindNotFound:
		return 404
	case KindBackendUnavailable:
		return 503
	case KindBackendRejected:
		return 422
	case KindTimeout:
		return 504
	case KindCancelled:
		return 200
	case KindOutputMissing, KindInternal:
		return 500
	default:
		return 500
	}
}

// IsRetryable reports whether the retry policy auto-retries this kind.
func IsRetryable(k Kind) bool {
	return k == KindBackendUnavailable
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if ae, ok := err.(*Error); ok {
			return ae, true
		}
	}
	return nil, false
}
