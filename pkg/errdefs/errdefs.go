// Package errdefs defines the typed error taxonomy shared by the upstream
// client, the dispatcher, and the HTTP layer. Handlers return these errors;
// the dispatcher translates them into result envelopes or JSON-RPC errors.
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for envelope translation and status mapping.
type Kind string

const (
	KindInvalidParameters    Kind = "InvalidParameters"
	KindAuthentication       Kind = "Authentication"
	KindPermissionDenied     Kind = "PermissionDenied"
	KindNotFound             Kind = "NotFound"
	KindOperationExists      Kind = "OperationExists"
	KindOperationFinalized   Kind = "OperationFinalized"
	KindConflict             Kind = "Conflict"
	KindUnsupportedMediaType Kind = "UnsupportedMediaType"
	KindNotAcceptable        Kind = "NotAcceptable"
	KindUpstreamError        Kind = "UpstreamError"
	KindCancelled            Kind = "Cancelled"
	KindTimeout              Kind = "Timeout"
	KindInternalError        Kind = "InternalError"
)

// FieldError carries one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error carried across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Code    int          // numeric code surfaced on error events; 0 means derived from Kind
	Details []FieldError // field-level details, validation failures only
	Err     error        // wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidParameters creates a validation error with optional field details.
func InvalidParameters(message string, details ...FieldError) *Error {
	return &Error{Kind: KindInvalidParameters, Message: message, Details: details}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// OperationExists signals a startOperation id collision.
func OperationExists(id string) *Error {
	return Newf(KindOperationExists, "operation %q already exists", id)
}

// OperationFinalized signals a reporter call against a terminal operation.
func OperationFinalized(id string) *Error {
	return Newf(KindOperationFinalized, "operation %q is finalized", id)
}

// Cancelled creates a cancellation error.
func Cancelled(message string) *Error {
	return &Error{Kind: KindCancelled, Message: message}
}

// Timeout creates a timeout error.
func Timeout(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternalError, Message: message, Err: err}
}

// FromUpstreamStatus maps an upstream HTTP status to an error kind.
// The original status is preserved in Code.
func FromUpstreamStatus(status int, message string) *Error {
	var kind Kind
	switch {
	case status == http.StatusBadRequest:
		kind = KindInvalidParameters
	case status == http.StatusUnauthorized:
		kind = KindAuthentication
	case status == http.StatusForbidden:
		kind = KindPermissionDenied
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusConflict:
		kind = KindConflict
	case status == http.StatusNotAcceptable:
		kind = KindNotAcceptable
	case status == http.StatusUnsupportedMediaType:
		kind = KindUnsupportedMediaType
	default:
		kind = KindUpstreamError
	}
	return &Error{Kind: kind, Message: message, Code: status}
}

// FromContext translates a context error into the taxonomy. Returns nil when
// err carries no context cancellation or deadline.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return Wrap(KindCancelled, "operation cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(KindTimeout, "operation timed out", err)
	default:
		return nil
	}
}

// KindOf extracts the kind from an error chain. Unrecognized errors report
// KindInternalError; context errors report Cancelled/Timeout.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternalError
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the transport status for its kind.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidParameters:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindOperationExists, KindConflict:
		return http.StatusConflict
	case KindOperationFinalized:
		return http.StatusGone
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindNotAcceptable:
		return http.StatusNotAcceptable
	case KindUpstreamError:
		return http.StatusBadGateway
	case KindCancelled:
		return statusClientClosedRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// statusClientClosedRequest is the nginx convention for client-initiated
// cancellation; net/http has no constant for it.
const statusClientClosedRequest = 499

// NumericCode returns the code surfaced on error events: the explicit Code
// when set, otherwise the HTTP status for the kind.
func NumericCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return HTTPStatus(err)
}
